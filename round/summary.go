package round

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/geanlabs/attester/types"
)

// Summary is the outcome of a finished round, shared with peers.
type Summary struct {
	ID            types.RoundID
	Submitter     common.Address
	Status        types.RoundStatus
	MerkleRoot    common.Hash
	Attestations  int
	Valid         int
	Chosen        int
	BitVoteResult []byte
}

func (r *Round) summary() Summary {
	s := Summary{
		ID:           r.ID,
		Submitter:    r.m.chain.Address(),
		Status:       r.status,
		Attestations: len(r.attestations),
		Valid:        r.validCount(),
		Chosen:       len(r.chosen),
	}
	if r.commitReady {
		s.MerkleRoot = r.commit.MerkleRoot
	}
	if rec, ok, err := r.m.state.GetRound(r.ID); err == nil && ok {
		s.BitVoteResult = rec.BitVoteResult
	}
	return s
}

// OnPeerSummary compares a peer's result for a round with ours.
func (m *Manager) OnPeerSummary(peer string, s Summary) {
	log := m.log.With("round", s.ID, "peer", peer, "submitter", s.Submitter)
	rec, ok, err := m.state.GetRound(s.ID)
	switch {
	case err != nil:
		log.Warn("failed to load round", "err", err)
	case !ok || !rec.HasCommitData():
		log.Debug("peer summary for a round we did not commit", "root", s.MerkleRoot)
	case rec.MerkleRoot == s.MerkleRoot:
		log.Debug("peer agrees on round root", "root", s.MerkleRoot)
	default:
		log.Warn("peer disagrees on round root",
			"ours", rec.MerkleRoot,
			"theirs", s.MerkleRoot,
			"their_attestations", s.Attestations,
			"their_chosen", s.Chosen,
		)
	}
}
