package storage

import (
	ssz "github.com/ferranbt/fastssz"
	"github.com/geanlabs/attester/types"
)

const (
	roundResultFixedSize = 8 + 1 + 1 + 32*3 + 4*4 + 4 + 4
	maxBitVoteResult     = 8192
	maxComment           = 1024
)

// MarshalSSZ ssz marshals the RoundResult object
func (r *RoundResult) MarshalSSZ() ([]byte, error) {
	return ssz.MarshalSSZ(r)
}

// MarshalSSZTo ssz marshals the RoundResult object to a target array
func (r *RoundResult) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	offset := roundResultFixedSize

	// Field (0) 'RoundID'
	dst = ssz.MarshalUint64(dst, uint64(r.RoundID))

	// Field (1) 'Status'
	dst = ssz.MarshalUint8(dst, uint8(r.Status))

	// Field (2) 'Flags'
	dst = ssz.MarshalUint8(dst, uint8(r.Flags))

	// Field (3) 'MerkleRoot'
	dst = append(dst, r.MerkleRoot[:]...)

	// Field (4) 'MaskedMerkleRoot'
	dst = append(dst, r.MaskedMerkleRoot[:]...)

	// Field (5) 'Random'
	dst = append(dst, r.Random[:]...)

	// Fields (6-9) counters
	dst = ssz.MarshalUint32(dst, r.AttestationCount)
	dst = ssz.MarshalUint32(dst, r.ValidCount)
	dst = ssz.MarshalUint32(dst, r.ProcessedCount)
	dst = ssz.MarshalUint32(dst, r.DuplicateCount)

	// Offset (10) 'BitVoteResult'
	dst = ssz.WriteOffset(dst, offset)
	offset += len(r.BitVoteResult)

	// Offset (11) 'Comment'
	dst = ssz.WriteOffset(dst, offset)

	// Field (10) 'BitVoteResult'
	if size := len(r.BitVoteResult); size > maxBitVoteResult {
		err = ssz.ErrBytesLengthFn("RoundResult.BitVoteResult", size, maxBitVoteResult)
		return
	}
	dst = append(dst, r.BitVoteResult...)

	// Field (11) 'Comment'
	if size := len(r.Comment); size > maxComment {
		err = ssz.ErrBytesLengthFn("RoundResult.Comment", size, maxComment)
		return
	}
	dst = append(dst, r.Comment...)

	return
}

// UnmarshalSSZ ssz unmarshals the RoundResult object
func (r *RoundResult) UnmarshalSSZ(buf []byte) error {
	size := uint64(len(buf))
	if size < roundResultFixedSize {
		return ssz.ErrSize
	}

	// Field (0) 'RoundID'
	r.RoundID = types.RoundID(ssz.UnmarshallUint64(buf[0:8]))

	// Field (1) 'Status'
	r.Status = types.RoundStatus(ssz.UnmarshallUint8(buf[8:9]))

	// Field (2) 'Flags'
	r.Flags = RoundFlags(ssz.UnmarshallUint8(buf[9:10]))

	// Fields (3-5) roots
	copy(r.MerkleRoot[:], buf[10:42])
	copy(r.MaskedMerkleRoot[:], buf[42:74])
	copy(r.Random[:], buf[74:106])

	// Fields (6-9) counters
	r.AttestationCount = ssz.UnmarshallUint32(buf[106:110])
	r.ValidCount = ssz.UnmarshallUint32(buf[110:114])
	r.ProcessedCount = ssz.UnmarshallUint32(buf[114:118])
	r.DuplicateCount = ssz.UnmarshallUint32(buf[118:122])

	// Offset (10) 'BitVoteResult'
	o10 := ssz.ReadOffset(buf[122:126])
	if o10 != roundResultFixedSize || o10 > size {
		return ssz.ErrOffset
	}

	// Offset (11) 'Comment'
	o11 := ssz.ReadOffset(buf[126:130])
	if o11 < o10 || o11 > size {
		return ssz.ErrOffset
	}

	// Field (10) 'BitVoteResult'
	{
		tail := buf[o10:o11]
		if len(tail) > maxBitVoteResult {
			return ssz.ErrBytesLength
		}
		if len(tail) > 0 {
			r.BitVoteResult = append(r.BitVoteResult[:0], tail...)
		} else {
			r.BitVoteResult = nil
		}
	}

	// Field (11) 'Comment'
	{
		tail := buf[o11:]
		if len(tail) > maxComment {
			return ssz.ErrBytesLength
		}
		r.Comment = string(tail)
	}
	return nil
}

// SizeSSZ returns the ssz encoded size in bytes for the RoundResult object
func (r *RoundResult) SizeSSZ() (size int) {
	size = roundResultFixedSize
	size += len(r.BitVoteResult)
	size += len(r.Comment)
	return
}
