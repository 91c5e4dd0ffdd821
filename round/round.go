// Package round runs the commit-reveal life cycle of attestation rounds.
//
// A Round collects attestations during its epoch, agrees with the default
// set on which of them are confirmed (choose phase), commits a masked
// Merkle root over the confirmed ones (commit phase) and reveals it one
// epoch later (reveal phase). Every method runs on the loop goroutine.
package round

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/geanlabs/attester/attestation"
	"github.com/geanlabs/attester/bitvote"
	"github.com/geanlabs/attester/chain"
	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/internal/loop"
	"github.com/geanlabs/attester/merkle"
	"github.com/geanlabs/attester/source"
	"github.com/geanlabs/attester/storage"
	"github.com/geanlabs/attester/types"
	"github.com/geanlabs/attester/verifier"
)

// bitVoteRetryDelay is how long a bit vote submission waits when it fires
// before the choose phase has started.
const bitVoteRetryDelay = time.Second

// Round is one attestation round.
type Round struct {
	ID types.RoundID

	m      *Manager
	log    *slog.Logger
	global *config.GlobalConfig
	router verifier.Router

	phase  types.RoundPhase
	status types.RoundStatus

	attestations []*attestation.Attestation
	byKey        map[string]*attestation.Attestation
	processed    int
	duplicates   int
	limiters     map[types.SourceID]*source.Limiter

	// attestors allowed to bit vote, nil until resolved
	defaultSet []common.Address
	votes      map[common.Address]bitvote.Bitmask
	// own bit vote snapshot
	bitVoteRecord bitvote.Bitmask
	chosen        []int

	commit      storage.CommitData
	commitReady bool
}

func newRound(id types.RoundID, m *Manager, g *config.GlobalConfig, router verifier.Router) *Round {
	return &Round{
		ID:       id,
		m:        m,
		log:      m.log.With("round", id),
		global:   g,
		router:   router,
		phase:    types.PhaseCollect,
		status:   types.RoundCollecting,
		byKey:    make(map[string]*attestation.Attestation),
		limiters: make(map[types.SourceID]*source.Limiter),
		votes:    make(map[common.Address]bitvote.Bitmask),
	}
}

func (r *Round) Phase() types.RoundPhase   { return r.phase }
func (r *Round) Status() types.RoundStatus { return r.status }

// Attestations returns the round's attestations in index order.
func (r *Round) Attestations() []*attestation.Attestation { return r.attestations }

func (r *Round) DuplicateCount() int { return r.duplicates }
func (r *Round) ProcessedCount() int { return r.processed }

// Chosen returns the attestation indices selected by bit voting.
func (r *Round) Chosen() []int { return r.chosen }

// CommitData returns the commit-reveal triple once it is prepared.
func (r *Round) CommitData() (storage.CommitData, bool) {
	return r.commit, r.commitReady
}

// CommitEndTime is the verification deadline of the round's attestations
// and the time of its first commit.
func (r *Round) CommitEndTime() time.Time {
	return r.m.clock.RevealStart(r.ID).Add(r.m.timing.CommitTime())
}

// setStatus moves the status forward. Terminal statuses are never left
// and ordered statuses never go back.
func (r *Round) setStatus(s types.RoundStatus) {
	if r.status.Terminal() {
		return
	}
	if !s.Terminal() && s <= r.status {
		return
	}
	r.log.Debug("round status", "from", r.status, "to", s)
	r.status = s
}

func (r *Round) setPhase(p types.RoundPhase) {
	if p > r.phase {
		r.phase = p
	}
}

// AddAttestation registers a and starts its verification. A request that
// is already in the round only counts as a duplicate.
func (r *Round) AddAttestation(a *attestation.Attestation) {
	if prev, dup := r.byKey[a.Key()]; dup {
		r.duplicates++
		r.log.Debug("duplicate attestation request",
			"first", fmt.Sprintf("%d.%d", prev.Event.BlockNumber, prev.Event.LogIndex),
			"duplicate", fmt.Sprintf("%d.%d", a.Event.BlockNumber, a.Event.LogIndex),
		)
		return
	}
	a.Round = r
	a.Index = len(r.attestations)
	r.attestations = append(r.attestations, a)
	r.byKey[a.Key()] = a

	if a.Status == types.AttestationFailed {
		r.OnAttestationProcessed(a)
		return
	}
	lim, ok := r.limiter(a.Source())
	if !ok {
		a.Status = types.AttestationFailed
		a.Err = ErrUnsupported
		r.OnAttestationProcessed(a)
		return
	}
	if !lim.CanProceed(a) {
		r.OnAttestationProcessed(a)
		return
	}
	r.m.sources.Validate(a)
}

func (r *Round) limiter(id types.SourceID) (*source.Limiter, bool) {
	if l, ok := r.limiters[id]; ok {
		return l, true
	}
	cfg, ok := r.global.SourceLimiter(id)
	if !ok {
		return nil, false
	}
	l := source.NewLimiter(cfg, r.log)
	r.limiters[id] = l
	return l, true
}

// OnAttestationProcessed is called once for every attestation that
// reaches a terminal status.
func (r *Round) OnAttestationProcessed(a *attestation.Attestation) {
	r.processed++
	if r.processed > len(r.attestations) {
		r.m.sched.Fatal(fmt.Errorf("%w: round %d, %d > %d", ErrProcessedOverflow, r.ID, r.processed, len(r.attestations)))
		return
	}
	r.log.Debug("attestation processed",
		"index", a.Index,
		"status", a.Status,
		"processed", r.processed,
		"total", len(r.attestations),
	)
	r.tryCalculateBitVotingResults()
	r.tryPrepareCommitData()
}

// RegisterBitVote records the latest vote of a default set attestor.
// Votes that arrive before the default set is known are kept until it is.
func (r *Round) RegisterBitVote(sender common.Address, vote bitvote.Bitmask) {
	if r.defaultSet != nil && !r.inDefaultSet(sender) {
		r.log.Debug("bit vote from outside the default set", "sender", sender)
		return
	}
	r.votes[sender] = vote
}

func (r *Round) inDefaultSet(addr common.Address) bool {
	for _, a := range r.defaultSet {
		if a == addr {
			return true
		}
	}
	return false
}

// VoteCount returns the number of votes currently held.
func (r *Round) VoteCount() int { return len(r.votes) }

func (r *Round) onDefaultSet(set []common.Address, err error) {
	if err != nil {
		r.log.Error("default set lookup failed", "err", err)
		r.setStatus(types.RoundError)
		return
	}
	r.defaultSet = set
	if r.defaultSet == nil {
		r.defaultSet = []common.Address{}
	}
	for addr := range r.votes {
		if !r.inDefaultSet(addr) {
			delete(r.votes, addr)
		}
	}
	r.log.Debug("default set resolved", "attestors", len(set), "assignors", len(r.global.DefaultSetAssignerAddresses))
	r.tryCalculateBitVotingResults()
	r.tryPrepareCommitData()
}

// CloseBitVoting stops accepting the outcome of further bit votes. It
// acts at most once.
func (r *Round) CloseBitVoting() {
	if r.status != types.RoundCollecting {
		return
	}
	r.log.Info("bit voting closed")
	r.setStatus(types.RoundBitVotingClosed)
	r.tryCalculateBitVotingResults()
	r.tryPrepareCommitData()
}

// validityMask has bit i set when attestation i is valid.
func (r *Round) validityMask() bitvote.Bitmask {
	m := make(bitvote.Bitmask, (len(r.attestations)+7)/8)
	for i, a := range r.attestations {
		if a.Valid() {
			m.Set(i)
		}
	}
	return m
}

func (r *Round) validCount() int {
	n := 0
	for _, a := range r.attestations {
		if a.Valid() {
			n++
		}
	}
	return n
}

// tryCalculateBitVotingResults tallies the default set's votes once
// voting is closed. If a selected attestation is still being verified the
// tally is retried on the next completion.
func (r *Round) tryCalculateBitVotingResults() {
	if r.phase != types.PhaseCommit || r.status != types.RoundBitVotingClosed {
		return
	}
	if r.defaultSet == nil {
		r.log.Debug("tally waits for the default set")
		return
	}

	votes := make([]bitvote.Bitmask, len(r.defaultSet))
	for i, addr := range r.defaultSet {
		votes[i] = r.votes[addr]
	}
	subset := r.global.ConsensusSubsetSize
	res := bitvote.Resolve(votes, subset, len(r.global.DefaultSetAssignerAddresses))
	if res.Reduced(subset) {
		r.log.Info("bit vote consensus on a reduced subset", "subset", res.SubsetSize, "requested", subset)
	}

	indices := res.Mask.Indices()
	pending, discard := 0, false
	for _, i := range indices {
		if i >= len(r.attestations) {
			r.log.Error("bit vote selects an unknown attestation", "index", i, "attestations", len(r.attestations))
			discard = true
			break
		}
		a := r.attestations[i]
		switch {
		case a.Valid():
		case a.Status.InFlight():
			pending++
		default:
			r.log.Info("unable to provide a chosen attestation", "index", i, "status", a.Status)
			discard = true
		}
		if discard {
			break
		}
	}
	if discard {
		indices = nil
	} else if pending > 0 {
		r.log.Debug("tally waits for verification", "pending", pending, "chosen", len(indices))
		return
	}

	for _, i := range indices {
		r.attestations[i].Chosen = true
	}
	r.chosen = indices
	r.setStatus(types.RoundChosen)
	r.log.Info("bit voting result", "mask", res.Mask, "chosen", len(indices), "discarded", discard)

	if err := r.m.state.SaveRoundBitVoteResult(r.ID, res.Mask); err != nil {
		r.log.Error("failed to persist bit vote result", "err", err)
	}
}

// tryPrepareCommitData builds the commit-reveal triple over the chosen
// attestations.
func (r *Round) tryPrepareCommitData() {
	if r.phase != types.PhaseCommit || r.status != types.RoundChosen {
		return
	}
	var leaves []common.Hash
	for _, a := range r.attestations {
		if a.Chosen && a.Valid() {
			leaves = append(leaves, a.Hash)
		}
	}
	if len(leaves) == 0 {
		r.log.Info("no attestations chosen, round is empty")
		r.setCommitData(common.Hash{}, true)
		return
	}
	r.setCommitData(merkle.Root(leaves), false)
}

// forceEmpty abstains from the round: it commits the zero root unless
// commit data is already prepared.
func (r *Round) forceEmpty() {
	if r.commitReady {
		return
	}
	r.log.Warn("abstaining from round", "phase", r.phase, "status", r.status)
	r.setCommitData(common.Hash{}, true)
}

func (r *Round) setCommitData(root common.Hash, empty bool) {
	var random common.Hash
	if _, err := rand.Read(random[:]); err != nil {
		r.m.sched.Fatal(fmt.Errorf("round %d: random: %w", r.ID, err))
		return
	}
	r.commit = storage.CommitData{
		MerkleRoot:       root,
		MaskedMerkleRoot: merkle.CommitHash(root, random, r.m.chain.Address()),
		Random:           random,
		Empty:            empty,
	}
	r.commitReady = true
	r.setStatus(types.RoundCommitDataPrepared)
	r.log.Info("commit data prepared", "root", root, "masked", r.commit.MaskedMerkleRoot, "empty", empty)

	if err := r.m.state.SaveRound(r.ID, r.commit); err != nil {
		r.log.Error("failed to persist commit data", "err", err)
	}
}

func (r *Round) canCommit() bool {
	return r.phase == types.PhaseCommit && r.status == types.RoundCommitDataPrepared
}

func (r *Round) isEmpty() bool {
	return r.commitReady && r.commit.Empty
}

func (r *Round) onChoosePhaseStart() {
	r.setPhase(types.PhaseChoose)
	r.log.Debug("choose phase", "attestations", len(r.attestations))
}

func (r *Round) onCommitPhaseStart() {
	r.setPhase(types.PhaseCommit)
	r.log.Debug("commit phase", "processed", r.processed, "attestations", len(r.attestations))
	r.tryCalculateBitVotingResults()
	r.tryPrepareCommitData()
}

func (r *Round) onRevealPhaseStart() {
	r.setPhase(types.PhaseReveal)
	if !r.commitReady {
		r.log.Warn("reveal phase without commit data", "status", r.status)
	}
}

func (r *Round) onFinalisePhaseStart() {
	r.setPhase(types.PhaseFinalise)
	r.log.Info("round finished",
		"status", r.status,
		"attestations", len(r.attestations),
		"valid", r.validCount(),
		"chosen", len(r.chosen),
		"duplicates", r.duplicates,
	)
	r.saveComment()
	if r.m.onFinalise != nil {
		r.m.onFinalise(r.summary())
	}
}

func (r *Round) saveComment() {
	c := storage.Comment{
		Status:           r.status,
		AttestationCount: uint32(len(r.attestations)),
		ValidCount:       uint32(r.validCount()),
		ProcessedCount:   uint32(r.processed),
		DuplicateCount:   uint32(r.duplicates),
		Text:             fmt.Sprintf("%s/%s", r.phase, r.status),
	}
	if err := r.m.state.SaveRoundComment(r.ID, c); err != nil {
		r.log.Warn("failed to persist round comment", "err", err)
	}
}

// onSubmitBitVote votes on the attestations verified so far.
func (r *Round) onSubmitBitVote() {
	switch r.phase {
	case types.PhaseCollect:
		r.m.sched.At("round.submitBitVote", r.m.sched.Now().Add(bitVoteRetryDelay), r.onSubmitBitVote)
		return
	case types.PhaseChoose:
	default:
		r.log.Error("bit vote submission in wrong phase", "phase", r.phase)
		return
	}

	r.bitVoteRecord = r.validityMask()
	if r.bitVoteRecord.IsZero() {
		r.log.Info("bit vote skipped, nothing valid")
		return
	}
	sub := chain.BitVoteSubmission{
		BufferNumber:     uint64(r.ID) + 1,
		Vote:             bitvote.Encode(r.ID, r.bitVoteRecord),
		AttestationCount: len(r.attestations),
		ValidCount:       r.validCount(),
		DuplicateCount:   r.duplicates,
	}
	loop.Go(r.m.sched, r.m.exec, "round.bitVoteSubmitted", func() func() {
		ctx, cancel := context.WithTimeout(r.m.ctx, r.m.submitTimeout)
		defer cancel()
		receipt, err := r.m.chain.SubmitBitVote(ctx, sub)
		return func() {
			if err != nil {
				r.log.Error("bit vote submission failed", "buffer", sub.BufferNumber, "err", err)
				return
			}
			r.log.Info("bit vote submitted", "buffer", sub.BufferNumber, "tx", receipt.TxHash)
		}
	})
}

// onFirstCommit commits a round whose predecessor is not resident, so no
// one else will. The reveal half carries the persisted data of the
// previous round, if any.
func (r *Round) onFirstCommit() {
	prevID, hasPrev := r.ID.Prev()
	if hasPrev {
		if _, ok := r.m.rounds[prevID]; ok {
			r.log.Debug("first commit left to the previous round")
			return
		}
	}
	if !r.canCommit() {
		r.forceEmpty()
	}
	if !r.commitReady {
		return
	}

	var reveal storage.CommitData
	if hasPrev {
		rec, ok, err := r.m.state.GetRound(prevID)
		switch {
		case err != nil:
			r.log.Warn("failed to load previous round", "prev", prevID, "err", err)
		case ok && rec.HasCommitData():
			reveal = storage.CommitData{MerkleRoot: rec.MerkleRoot, Random: rec.Random}
		}
	}

	r.submit("round.firstCommit", chain.AttestationSubmission{
		BufferNumber:     uint64(r.ID) + 1,
		CommitMaskedRoot: r.commit.MaskedMerkleRoot,
		CommitRoot:       r.commit.MerkleRoot,
		CommitRandom:     r.commit.Random,
		RevealRoot:       reveal.MerkleRoot,
		RevealRandom:     reveal.Random,
	}, func(err error) {
		if err != nil {
			r.log.Error("first commit failed", "err", err)
			r.setStatus(types.RoundError)
			return
		}
		r.markCommitted()
	})
}

// onSubmitAttestation reveals this round and commits the next one in a
// single transaction.
func (r *Round) onSubmitAttestation() {
	if r.phase != types.PhaseReveal {
		r.log.Error("attestation submission in wrong phase", "phase", r.phase)
		return
	}

	var reveal storage.CommitData
	if r.commitReady {
		reveal = r.commit
	} else {
		r.log.Error("nothing to reveal, revealing zero", "status", r.status)
	}

	var commit storage.CommitData
	next, hasNext := r.m.rounds[r.ID+1]
	if hasNext {
		if !next.canCommit() {
			next.forceEmpty()
		}
		commit = next.commit
	} else {
		r.log.Warn("next round not resident, committing zero")
	}

	prevID, ok := r.ID.Prev()
	prev, hasPrev := r.m.rounds[prevID]
	if r.isEmpty() && ok && hasPrev && prev.isEmpty() && hasNext && next.isEmpty() {
		r.log.Info("skipping submission, surrounding rounds are empty")
		r.setStatus(types.RoundRevealed)
		return
	}

	r.submit("round.submitAttestation", chain.AttestationSubmission{
		BufferNumber:     uint64(r.ID) + 2,
		CommitMaskedRoot: commit.MaskedMerkleRoot,
		CommitRoot:       commit.MerkleRoot,
		CommitRandom:     commit.Random,
		RevealRoot:       reveal.MerkleRoot,
		RevealRandom:     reveal.Random,
	}, func(err error) {
		if err != nil {
			r.log.Error("attestation submission failed", "err", err)
			r.setStatus(types.RoundError)
			return
		}
		if hasNext {
			next.markCommitted()
		}
		r.setStatus(types.RoundRevealed)
		if err := r.m.state.SaveRoundRevealed(r.ID); err != nil {
			r.log.Warn("failed to persist reveal", "err", err)
		}
	})
}

func (r *Round) markCommitted() {
	r.setStatus(types.RoundCommitted)
	if err := r.m.state.SaveRoundCommitted(r.ID); err != nil {
		r.log.Warn("failed to persist commit", "err", err)
	}
}

// submit sends s off the loop and runs done with the outcome on the loop.
func (r *Round) submit(name string, s chain.AttestationSubmission, done func(error)) {
	loop.Go(r.m.sched, r.m.exec, name, func() func() {
		ctx, cancel := context.WithTimeout(r.m.ctx, r.m.submitTimeout)
		defer cancel()
		receipt, err := r.m.chain.SubmitAttestation(ctx, s)
		return func() {
			if err == nil {
				r.log.Info("attestation submitted", "buffer", s.BufferNumber, "tx", receipt.TxHash, "block", receipt.BlockNumber)
			}
			done(err)
		}
	})
}
