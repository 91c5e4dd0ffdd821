package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/geanlabs/attester/attestation"
	"github.com/geanlabs/attester/types"
)

type requestLog struct {
	Sender    common.Address
	Timestamp *big.Int
	Data      []byte
}

type bitVoteLog struct {
	Timestamp *big.Int
	Data      []byte
}

type roundFinalisedLog struct {
	MerkleRoot [32]byte
}

// DecodeRequest decodes an AttestationRequest log.
func DecodeRequest(l gethtypes.Log) (attestation.RequestEvent, error) {
	var out requestLog
	if err := contracts.UnpackIntoInterface(&out, "AttestationRequest", l.Data); err != nil {
		return attestation.RequestEvent{}, fmt.Errorf("%w: AttestationRequest: %v", ErrBadLog, err)
	}
	return attestation.RequestEvent{
		Timestamp:   out.Timestamp.Uint64(),
		BlockNumber: l.BlockNumber,
		LogIndex:    uint32(l.Index),
		Request:     out.Data,
	}, nil
}

// DecodeBitVote decodes a BitVote log.
func DecodeBitVote(l gethtypes.Log) (attestation.BitVoteEvent, error) {
	if len(l.Topics) < 2 {
		return attestation.BitVoteEvent{}, fmt.Errorf("%w: BitVote: %d topics", ErrBadLog, len(l.Topics))
	}
	var out bitVoteLog
	if err := contracts.UnpackIntoInterface(&out, "BitVote", l.Data); err != nil {
		return attestation.BitVoteEvent{}, fmt.Errorf("%w: BitVote: %v", ErrBadLog, err)
	}
	return attestation.BitVoteEvent{
		Sender:      common.BytesToAddress(l.Topics[1].Bytes()),
		Timestamp:   out.Timestamp.Uint64(),
		BlockNumber: l.BlockNumber,
		Data:        out.Data,
	}, nil
}

// DecodeRoundFinalised decodes a RoundFinalised log.
func DecodeRoundFinalised(l gethtypes.Log) (attestation.RoundFinalisedEvent, error) {
	if len(l.Topics) < 2 {
		return attestation.RoundFinalisedEvent{}, fmt.Errorf("%w: RoundFinalised: %d topics", ErrBadLog, len(l.Topics))
	}
	var out roundFinalisedLog
	if err := contracts.UnpackIntoInterface(&out, "RoundFinalised", l.Data); err != nil {
		return attestation.RoundFinalisedEvent{}, fmt.Errorf("%w: RoundFinalised: %v", ErrBadLog, err)
	}
	id := new(big.Int).SetBytes(l.Topics[1].Bytes())
	if !id.IsUint64() {
		return attestation.RoundFinalisedEvent{}, fmt.Errorf("%w: RoundFinalised: round id %s", ErrBadLog, id)
	}
	return attestation.RoundFinalisedEvent{
		RoundID:    types.RoundID(id.Uint64()),
		MerkleRoot: out.MerkleRoot,
	}, nil
}
