package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/geanlabs/attester/attestation"
	"github.com/geanlabs/attester/internal/loop"
	"github.com/geanlabs/attester/types"
	"github.com/geanlabs/attester/verifier"
	"github.com/google/btree"
)

const (
	DefaultMaxFailedRetries = 3
	DefaultRetryDelay       = 100 * time.Millisecond
	DefaultVerifyTimeout    = 30 * time.Second

	heartbeatInterval = 100 * time.Millisecond
)

// limits are the dispatch settings of the latest round's verifier config.
// Zero means unlimited.
type limits struct {
	maxRequestsPerSecond int
	maxInFlight          int
	maxFailedRetries     int
	retryDelay           time.Duration
}

func defaultLimits() limits {
	return limits{
		maxFailedRetries: DefaultMaxFailedRetries,
		retryDelay:       DefaultRetryDelay,
	}
}

type delayed struct {
	at  time.Time
	seq uint64
	a   *attestation.Attestation
}

func (d delayed) less(o delayed) bool {
	if !d.at.Equal(o.at) {
		return d.at.Before(o.at)
	}
	return d.seq < o.seq
}

// Manager dispatches the attestations of one source. An attestation is in
// exactly one of the FIFO queue, the delay queue, the in-flight set, or
// finished. All methods run on the scheduler's goroutine.
type Manager struct {
	id      types.SourceID
	log     *slog.Logger
	sched   loop.Scheduler
	exec    loop.Executor
	configs Configs
	timeout time.Duration

	latestRound types.RoundID
	limits      limits

	queue    []*attestation.Attestation
	delay    *btree.BTreeG[delayed]
	seq      uint64
	inFlight map[*attestation.Attestation]struct{}

	second             int64
	requestsThisSecond int
	heartbeat          bool
}

func newManager(id types.SourceID, r *Router) *Manager {
	return &Manager{
		id:       id,
		log:      r.log.With("source", id),
		sched:    r.sched,
		exec:     r.exec,
		configs:  r.configs,
		timeout:  r.timeout,
		limits:   defaultLimits(),
		delay:    btree.NewG(8, delayed.less),
		inFlight: make(map[*attestation.Attestation]struct{}),
	}
}

// RefreshLatestRoundID picks up the dispatch limits configured for round
// id. Older rounds are ignored.
func (m *Manager) RefreshLatestRoundID(id types.RoundID) {
	if id < m.latestRound {
		return
	}
	m.latestRound = id

	l := defaultLimits()
	if router, ok := m.configs.VerifierRouter(id); ok {
		if sc, ok := router.SourceConfig(m.id); ok {
			l.maxRequestsPerSecond = max(sc.MaxRequestsPerSecond, 0)
			l.maxInFlight = max(sc.MaxProcessingTransactions, 0)
			if sc.MaxFailedRetries > 0 {
				l.maxFailedRetries = sc.MaxFailedRetries
			}
			if sc.DelayBeforeRetryMs > 0 {
				l.retryDelay = time.Duration(sc.DelayBeforeRetryMs) * time.Millisecond
			}
		}
	}
	m.limits = l
}

// Validate queues a for verification and starts as much work as the
// limits allow.
func (m *Manager) Validate(a *attestation.Attestation) {
	a.Status = types.AttestationQueued
	m.queue = append(m.queue, a)
	m.startNext()
}

// canAdmit reports whether one more request fits the rate and concurrency
// limits at now.
func (m *Manager) canAdmit(now time.Time) bool {
	if sec := now.Unix(); sec != m.second {
		m.second = sec
		m.requestsThisSecond = 0
	}
	if m.limits.maxRequestsPerSecond > 0 && m.requestsThisSecond >= m.limits.maxRequestsPerSecond {
		return false
	}
	if m.limits.maxInFlight > 0 && len(m.inFlight) >= m.limits.maxInFlight {
		return false
	}
	return true
}

// next pops the next attestation to dispatch: time-eligible retries first,
// then the FIFO queue.
func (m *Manager) next(now time.Time) *attestation.Attestation {
	if d, ok := m.delay.Min(); ok && !d.at.After(now) {
		m.delay.DeleteMin()
		return d.a
	}
	if len(m.queue) == 0 {
		return nil
	}
	a := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return a
}

func (m *Manager) startNext() {
	now := m.sched.Now()
	for m.canAdmit(now) {
		a := m.next(now)
		if a == nil {
			break
		}
		m.process(a, now)
	}

	waiting := len(m.queue) > 0 || m.delay.Len() > 0
	if waiting && len(m.inFlight) == 0 && !m.heartbeat {
		m.heartbeat = true
		m.sched.At("source.heartbeat", now.Add(heartbeatInterval), func() {
			m.heartbeat = false
			m.startNext()
		})
	}
}

func (m *Manager) process(a *attestation.Attestation, now time.Time) {
	router, ok := m.configs.VerifierRouter(a.RoundID)
	if !ok || !router.IsSupported(a.Source(), a.Type()) {
		a.Err = ErrNoRouter
		m.finish(a, types.AttestationFailed)
		return
	}
	if a.Round != nil && now.After(a.Round.CommitEndTime()) {
		m.finish(a, types.AttestationTooLate)
		return
	}

	a.Status = types.AttestationProcessing
	a.ProcessStart = now
	m.inFlight[a] = struct{}{}
	m.requestsThisSecond++

	request, timeout := a.Request(), m.timeout
	loop.Go(m.sched, m.exec, "source.verify", func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		v, err := router.Verify(ctx, request)
		return func() { m.onVerified(a, v, err) }
	})
}

func (m *Manager) onVerified(a *attestation.Attestation, v *verifier.Verification, err error) {
	delete(m.inFlight, a)

	if err != nil {
		if a.Retry < m.limits.maxFailedRetries {
			a.Retry++
			a.Status = types.AttestationQueued
			m.seq++
			m.delay.ReplaceOrInsert(delayed{at: m.sched.Now().Add(m.limits.retryDelay), seq: m.seq, a: a})
			m.log.Debug("verification failed, retrying", "round", a.RoundID, "retry", a.Retry, "err", err)
			m.startNext()
			return
		}
		m.log.Warn("verification failed, retries exhausted", "round", a.RoundID, "index", a.Index, "err", err)
		a.Err = err
		m.finish(a, types.AttestationError)
		return
	}

	switch {
	case v.Status == verifier.StatusOK:
		if attestation.MIC(a.Header, v.Response) != a.Header.MIC {
			m.log.Debug("mic mismatch", "round", a.RoundID, "index", a.Index)
			m.finish(a, types.AttestationInvalid)
			return
		}
		a.Response = v.Response
		a.Hash = attestation.CommitmentHash(a.Header, a.RoundID, v.Response)
		m.finish(a, types.AttestationValid)
	case v.Status == verifier.StatusNeedsMoreChecks:
		m.finish(a, types.AttestationError)
	case verifier.Summarize(v.Status) == verifier.SummaryInvalid:
		m.finish(a, types.AttestationInvalid)
	default:
		m.log.Warn("indeterminate verification", "round", a.RoundID, "index", a.Index, "status", v.Status)
		m.finish(a, types.AttestationError)
	}
}

// finish records a terminal status, notifies the round and schedules the
// next dispatch.
func (m *Manager) finish(a *attestation.Attestation, status types.AttestationStatus) {
	a.Status = status
	a.ProcessEnd = m.sched.Now()
	if a.Round != nil {
		a.Round.OnAttestationProcessed(a)
	}
	m.sched.Post("source.startNext", m.startNext)
}

// QueueLen returns the number of attestations waiting in the FIFO queue.
func (m *Manager) QueueLen() int { return len(m.queue) }

// DelayedLen returns the number of attestations waiting to be retried.
func (m *Manager) DelayedLen() int { return m.delay.Len() }

// InFlight returns the number of verifier calls in progress.
func (m *Manager) InFlight() int { return len(m.inFlight) }
