package networking

import (
	"github.com/ethereum/go-ethereum/common"
	ssz "github.com/ferranbt/fastssz"
	"github.com/geanlabs/attester/types"
)

const (
	roundSummaryFixedSize = 8 + 20 + 1 + 32 + 4*3 + 4
	maxSummaryBitVote     = 8192
)

// RoundSummary is the outcome of a finished round as one provider saw it.
type RoundSummary struct {
	RoundID          types.RoundID
	Submitter        common.Address
	Status           types.RoundStatus
	MerkleRoot       common.Hash
	AttestationCount uint32
	ValidCount       uint32
	ChosenCount      uint32
	BitVoteResult    []byte
}

// MarshalSSZ ssz marshals the RoundSummary object
func (s *RoundSummary) MarshalSSZ() ([]byte, error) {
	return ssz.MarshalSSZ(s)
}

// MarshalSSZTo ssz marshals the RoundSummary object to a target array
func (s *RoundSummary) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf

	// Field (0) 'RoundID'
	dst = ssz.MarshalUint64(dst, uint64(s.RoundID))

	// Field (1) 'Submitter'
	dst = append(dst, s.Submitter[:]...)

	// Field (2) 'Status'
	dst = ssz.MarshalUint8(dst, uint8(s.Status))

	// Field (3) 'MerkleRoot'
	dst = append(dst, s.MerkleRoot[:]...)

	// Fields (4-6) counters
	dst = ssz.MarshalUint32(dst, s.AttestationCount)
	dst = ssz.MarshalUint32(dst, s.ValidCount)
	dst = ssz.MarshalUint32(dst, s.ChosenCount)

	// Offset (7) 'BitVoteResult'
	dst = ssz.WriteOffset(dst, roundSummaryFixedSize)

	// Field (7) 'BitVoteResult'
	if size := len(s.BitVoteResult); size > maxSummaryBitVote {
		err = ssz.ErrBytesLengthFn("RoundSummary.BitVoteResult", size, maxSummaryBitVote)
		return
	}
	dst = append(dst, s.BitVoteResult...)
	return
}

// UnmarshalSSZ ssz unmarshals the RoundSummary object
func (s *RoundSummary) UnmarshalSSZ(buf []byte) error {
	size := uint64(len(buf))
	if size < roundSummaryFixedSize {
		return ssz.ErrSize
	}

	s.RoundID = types.RoundID(ssz.UnmarshallUint64(buf[0:8]))
	copy(s.Submitter[:], buf[8:28])
	s.Status = types.RoundStatus(ssz.UnmarshallUint8(buf[28:29]))
	copy(s.MerkleRoot[:], buf[29:61])
	s.AttestationCount = ssz.UnmarshallUint32(buf[61:65])
	s.ValidCount = ssz.UnmarshallUint32(buf[65:69])
	s.ChosenCount = ssz.UnmarshallUint32(buf[69:73])

	// Offset (7) 'BitVoteResult'
	o7 := ssz.ReadOffset(buf[73:77])
	if o7 != roundSummaryFixedSize || o7 > size {
		return ssz.ErrOffset
	}
	tail := buf[o7:]
	if len(tail) > maxSummaryBitVote {
		return ssz.ErrBytesLength
	}
	s.BitVoteResult = nil
	if len(tail) > 0 {
		s.BitVoteResult = append([]byte(nil), tail...)
	}
	return nil
}

// SizeSSZ returns the ssz encoded size in bytes for the RoundSummary object
func (s *RoundSummary) SizeSSZ() int {
	return roundSummaryFixedSize + len(s.BitVoteResult)
}
