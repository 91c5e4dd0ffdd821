package round

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/geanlabs/attester/attestation"
	"github.com/geanlabs/attester/bitvote"
	"github.com/geanlabs/attester/chain"
	"github.com/geanlabs/attester/clock"
	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/internal/loop"
	"github.com/geanlabs/attester/internal/retry"
	"github.com/geanlabs/attester/source"
	"github.com/geanlabs/attester/storage"
	"github.com/geanlabs/attester/types"
)

const (
	updateInterval       = 5 * time.Second
	defaultSubmitTimeout = 2 * time.Minute
)

type Config struct {
	Scheduler loop.Scheduler
	Executor  loop.Executor
	Clock     *clock.RoundClock
	Timing    config.TimingConfig
	Chain     chain.Connection
	State     *storage.State
	Sources   *source.Router
	Configs   source.Configs
	// StartRoundID is the first round the manager takes requests for.
	StartRoundID types.RoundID
	// Retry governs the default set lookup. Zero means retry.DefaultConfig.
	Retry         retry.Config
	SubmitTimeout time.Duration
	// OnFinalise receives the summary of every round that reaches the
	// finalise phase.
	OnFinalise func(Summary)
	Logger     *slog.Logger
}

// Manager owns the resident rounds and routes chain events to them.
type Manager struct {
	log     *slog.Logger
	sched   loop.Scheduler
	exec    loop.Executor
	clock   *clock.RoundClock
	timing  config.TimingConfig
	chain   chain.Connection
	state   *storage.State
	sources *source.Router
	configs source.Configs

	startRound    types.RoundID
	retry         retry.Config
	submitTimeout time.Duration
	onFinalise    func(Summary)

	ctx    context.Context
	cancel context.CancelFunc

	rounds  map[types.RoundID]*Round
	stopped bool
}

func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rc := cfg.Retry
	if rc.MaxRetries == 0 {
		rc = retry.DefaultConfig()
	}
	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:           logger.With("component", "round"),
		sched:         cfg.Scheduler,
		exec:          cfg.Executor,
		clock:         cfg.Clock,
		timing:        cfg.Timing,
		chain:         cfg.Chain,
		state:         cfg.State,
		sources:       cfg.Sources,
		configs:       cfg.Configs,
		startRound:    cfg.StartRoundID,
		retry:         rc,
		submitTimeout: timeout,
		onFinalise:    cfg.OnFinalise,
		ctx:           ctx,
		cancel:        cancel,
		rounds:        make(map[types.RoundID]*Round),
	}
}

// Start begins the periodic update. Call it on the loop.
func (m *Manager) Start() {
	m.log.Info("round manager started", "start_round", m.startRound)
	m.update()
}

// Stop cancels pending submissions and stops the periodic update.
func (m *Manager) Stop() {
	m.stopped = true
	m.cancel()
}

// Round returns a resident round.
func (m *Manager) Round(id types.RoundID) (*Round, bool) {
	r, ok := m.rounds[id]
	return r, ok
}

// RoundCount returns the number of resident rounds.
func (m *Manager) RoundCount() int {
	return len(m.rounds)
}

// RoundOrCreate returns round id, creating it and scheduling its phases
// if it is not resident. A round without a global config or verifier
// router cannot be run; that is reported as fatal.
func (m *Manager) RoundOrCreate(id types.RoundID) (*Round, bool) {
	if r, ok := m.rounds[id]; ok {
		return r, true
	}
	g, ok := m.configs.GlobalConfig(id)
	if !ok {
		m.sched.Fatal(fmt.Errorf("%w: %d", ErrNoGlobalConfig, id))
		return nil, false
	}
	router, ok := m.configs.VerifierRouter(id)
	if !ok {
		m.sched.Fatal(fmt.Errorf("%w: %d", ErrNoVerifierRouter, id))
		return nil, false
	}

	r := newRound(id, m, g, router)
	m.rounds[id] = r
	m.schedule(r)
	m.resolveDefaultSet(r)

	firstCommit := true
	if prevID, ok := id.Prev(); ok {
		_, resident := m.rounds[prevID]
		firstCommit = !resident
	}
	if firstCommit {
		m.sched.At("round.firstCommit", r.CommitEndTime(), r.onFirstCommit)
	}
	m.sources.InitializeSources(id)
	m.evict()

	r.log.Info("round created",
		"start", m.clock.RoundStart(id).Unix(),
		"commit_end", r.CommitEndTime().Unix(),
		"first_commit", firstCommit,
	)
	return r, true
}

func (m *Manager) schedule(r *Round) {
	c, t, id := m.clock, m.timing, r.ID
	m.sched.At("round.choose", c.ChooseStart(id), r.onChoosePhaseStart)
	m.sched.At("round.submitBitVote", c.CommitStart(id).Add(t.BitVoteTime()), r.onSubmitBitVote)
	m.sched.At("round.commit", c.CommitStart(id), r.onCommitPhaseStart)
	m.sched.At("round.closeBitVoting", c.CommitStart(id).Add(t.ForceCloseBitVoting()), r.CloseBitVoting)
	m.sched.At("round.reveal", c.RevealStart(id), r.onRevealPhaseStart)
	m.sched.At("round.submitAttestation", c.RoundComplete(id).Add(t.CommitTime()), r.onSubmitAttestation)
	m.sched.At("round.finalise", c.RoundComplete(id), r.onFinalisePhaseStart)
}

func (m *Manager) resolveDefaultSet(r *Round) {
	assignors := r.global.DefaultSetAssignerAddresses
	loop.Go(m.sched, m.exec, "round.defaultSet", func() func() {
		var set []common.Address
		err := retry.WithBackoff(m.ctx, m.retry, r.log, "default set lookup", func(ctx context.Context) error {
			var err error
			set, err = m.chain.AttestorsForAssignors(ctx, assignors)
			return err
		})
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrNoDefaultSet, err)
		}
		return func() { r.onDefaultSet(set, err) }
	})
}

// evict drops rounds that fell out of the retention window.
func (m *Manager) evict() {
	current := m.clock.RoundForTime(m.sched.Now())
	for id := range m.rounds {
		if id+types.RoundRetention < current {
			delete(m.rounds, id)
			m.log.Debug("round evicted", "round", id)
		}
	}
}

// OnAttestationRequest adds a requested attestation to the round its
// timestamp falls in.
func (m *Manager) OnAttestationRequest(ev attestation.RequestEvent) {
	id := m.clock.RoundForUnix(ev.Timestamp)
	if id < m.startRound || id+types.RoundRetention < m.clock.RoundForTime(m.sched.Now()) {
		m.log.Debug("request for an inactive round dropped", "round", id, "block", ev.BlockNumber)
		return
	}
	r, ok := m.RoundOrCreate(id)
	if !ok {
		return
	}

	a := attestation.New(id, ev)
	if a.Status != types.AttestationFailed &&
		(!r.global.IsSupported(a.Source(), a.Type()) || !r.router.IsSupported(a.Source(), a.Type())) {
		a.Status = types.AttestationFailed
		a.Err = fmt.Errorf("%w: %s %s", ErrUnsupported, a.Source(), a.Type())
	}
	if a.Err != nil {
		r.log.Debug("attestation not verifiable", "block", ev.BlockNumber, "log", ev.LogIndex, "err", a.Err)
	}
	r.AddAttestation(a)
}

// OnBitVoteEvent registers a bit vote with the round it votes on: the
// round before the epoch whose choose window contains the vote. Votes for
// rounds that are not resident are dropped; they never create a round.
func (m *Manager) OnBitVoteEvent(ev attestation.BitVoteEvent) {
	epoch, ok := m.clock.BitVoteRoundForTime(time.Unix(int64(ev.Timestamp), 0))
	if !ok || epoch == 0 {
		m.log.Debug("bit vote outside a choose window", "sender", ev.Sender, "timestamp", ev.Timestamp)
		return
	}
	id := epoch - 1

	check, mask, err := bitvote.Decode(ev.Data)
	if err != nil {
		m.log.Warn("malformed bit vote", "sender", ev.Sender, "err", err)
		return
	}
	if check != id.CheckByte() {
		m.log.Debug("bit vote round check mismatch", "round", id, "check", check, "sender", ev.Sender)
		return
	}
	r, ok := m.rounds[id]
	if !ok {
		m.log.Debug("bit vote for a round that is not resident", "round", id, "sender", ev.Sender)
		return
	}
	r.RegisterBitVote(ev.Sender, mask)
}

// OnLastNetworkTimestamp closes bit voting of every round whose choose
// window ended at or before the chain time t.
func (m *Manager) OnLastNetworkTimestamp(sec uint64) {
	t := time.Unix(int64(sec), 0)
	for _, id := range m.residentIDs() {
		if !t.Before(m.clock.CommitStart(id)) {
			m.rounds[id].CloseBitVoting()
		}
	}
}

// OnRoundFinalised compares a finalised root with the one this client
// committed to.
func (m *Manager) OnRoundFinalised(ev attestation.RoundFinalisedEvent) {
	log := m.log.With("round", ev.RoundID)
	rec, ok, err := m.state.GetRound(ev.RoundID)
	if err != nil {
		log.Warn("failed to load round", "err", err)
		return
	}

	match := false
	switch {
	case !ok || !rec.HasCommitData():
		log.Info("round finalised, root not committed", "root", ev.MerkleRoot)
	case rec.MerkleRoot == ev.MerkleRoot:
		match = true
		log.Info("round finalised with root as committed", "root", ev.MerkleRoot)
	default:
		log.Warn("round finalised with a different root", "finalised", ev.MerkleRoot, "committed", rec.MerkleRoot)
	}
	if err := m.state.SaveRoundFinalised(ev.RoundID, match); err != nil {
		log.Warn("failed to persist finalisation", "err", err)
	}
}

// update keeps the current round resident and snapshots active rounds.
func (m *Manager) update() {
	if m.stopped {
		return
	}
	current := m.clock.RoundForTime(m.sched.Now())
	if current >= m.startRound {
		m.RoundOrCreate(current)
	}
	for _, id := range m.residentIDs() {
		if r := m.rounds[id]; r.phase < types.PhaseFinalise {
			r.saveComment()
		}
	}
	m.sched.At("round.update", m.sched.Now().Add(updateInterval), m.update)
}

func (m *Manager) residentIDs() []types.RoundID {
	ids := make([]types.RoundID, 0, len(m.rounds))
	for id := range m.rounds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
