// Package storage persists what the round engine needs across restarts:
// commit data, bit-vote results and submission flags of each round.
package storage

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/geanlabs/attester/types"
)

// CommitData is the commit-reveal triple of a round.
type CommitData struct {
	MerkleRoot       common.Hash
	MaskedMerkleRoot common.Hash
	Random           common.Hash
	Empty            bool
}

// Comment is a periodic progress snapshot of a round.
type Comment struct {
	Status           types.RoundStatus
	AttestationCount uint32
	ValidCount       uint32
	ProcessedCount   uint32
	DuplicateCount   uint32
	Text             string
}

// State applies read-modify-write updates to round results.
type State struct {
	mu    sync.Mutex
	store Store
}

func NewState(store Store) *State {
	return &State{store: store}
}

func (s *State) update(id types.RoundID, fn func(r *RoundResult)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok, err := s.store.GetRound(id)
	if err != nil {
		return fmt.Errorf("load round %d: %w", id, err)
	}
	if !ok {
		r = &RoundResult{RoundID: id}
	}
	fn(r)
	if err := s.store.PutRound(r); err != nil {
		return fmt.Errorf("save round %d: %w", id, err)
	}
	return nil
}

// SaveRound stores the commit data of a round.
func (s *State) SaveRound(id types.RoundID, d CommitData) error {
	return s.update(id, func(r *RoundResult) {
		r.MerkleRoot = d.MerkleRoot
		r.MaskedMerkleRoot = d.MaskedMerkleRoot
		r.Random = d.Random
		r.Flags |= FlagCommitDataSaved
		if d.Empty {
			r.Flags |= FlagEmpty
		} else {
			r.Flags &^= FlagEmpty
		}
	})
}

func (s *State) SaveRoundComment(id types.RoundID, c Comment) error {
	if len(c.Text) > maxComment {
		c.Text = c.Text[:maxComment]
	}
	return s.update(id, func(r *RoundResult) {
		r.Status = c.Status
		r.AttestationCount = c.AttestationCount
		r.ValidCount = c.ValidCount
		r.ProcessedCount = c.ProcessedCount
		r.DuplicateCount = c.DuplicateCount
		r.Comment = c.Text
	})
}

func (s *State) SaveRoundBitVoteResult(id types.RoundID, mask []byte) error {
	if len(mask) > maxBitVoteResult {
		return fmt.Errorf("round %d: bit vote result of %d bytes exceeds %d", id, len(mask), maxBitVoteResult)
	}
	return s.update(id, func(r *RoundResult) {
		r.BitVoteResult = append([]byte(nil), mask...)
	})
}

func (s *State) SaveRoundCommitted(id types.RoundID) error {
	return s.update(id, func(r *RoundResult) { r.Flags |= FlagCommitted })
}

func (s *State) SaveRoundRevealed(id types.RoundID) error {
	return s.update(id, func(r *RoundResult) { r.Flags |= FlagRevealed })
}

// SaveRoundFinalised records that the round was finalised on chain and
// whether the finalised root matched ours.
func (s *State) SaveRoundFinalised(id types.RoundID, match bool) error {
	return s.update(id, func(r *RoundResult) {
		r.Flags |= FlagFinalised
		if match {
			r.Flags |= FlagFinalisedMatch
		}
	})
}

func (s *State) GetRound(id types.RoundID) (*RoundResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.GetRound(id)
}

func (s *State) LatestRound() (types.RoundID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.LatestRound()
}

func (s *State) Close() error {
	return s.store.Close()
}
