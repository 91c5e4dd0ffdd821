package storage

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/geanlabs/attester/types"
)

// RoundFlags records which submissions and checks a round went through.
type RoundFlags uint8

const (
	FlagEmpty RoundFlags = 1 << iota
	FlagCommitDataSaved
	FlagCommitted
	FlagRevealed
	FlagFinalised
	FlagFinalisedMatch
)

func (f RoundFlags) Has(flag RoundFlags) bool { return f&flag != 0 }

// RoundResult is the persisted state of one round.
type RoundResult struct {
	RoundID types.RoundID
	Status  types.RoundStatus
	Flags   RoundFlags

	MerkleRoot       common.Hash
	MaskedMerkleRoot common.Hash
	Random           common.Hash

	AttestationCount uint32
	ValidCount       uint32
	ProcessedCount   uint32
	DuplicateCount   uint32

	BitVoteResult []byte `ssz-max:"8192"`
	Comment       string `ssz-max:"1024"`
}

// Empty reports whether the round committed to an empty result.
func (r *RoundResult) Empty() bool { return r.Flags.Has(FlagEmpty) }

// HasCommitData reports whether the commit triple was saved.
func (r *RoundResult) HasCommitData() bool { return r.Flags.Has(FlagCommitDataSaved) }

// Clone returns a deep copy.
func (r *RoundResult) Clone() *RoundResult {
	c := *r
	if r.BitVoteResult != nil {
		c.BitVoteResult = append([]byte(nil), r.BitVoteResult...)
	}
	return &c
}
