package source

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/geanlabs/attester/attestation"
	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/internal/loop"
	"github.com/geanlabs/attester/types"
	"github.com/geanlabs/attester/verifier"
)

// Configs resolves the configuration in force for a round.
// globalconfig.Manager satisfies it.
type Configs interface {
	GlobalConfig(id types.RoundID) (*config.GlobalConfig, bool)
	VerifierRouter(id types.RoundID) (verifier.Router, bool)
}

type RouterConfig struct {
	Scheduler     loop.Scheduler
	Executor      loop.Executor
	Configs       Configs
	VerifyTimeout time.Duration
	Logger        *slog.Logger
}

// Router maps source ids to their Managers.
type Router struct {
	log      *slog.Logger
	sched    loop.Scheduler
	exec     loop.Executor
	configs  Configs
	timeout  time.Duration
	managers map[types.SourceID]*Manager
}

func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.VerifyTimeout
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	return &Router{
		log:      logger.With("component", "source"),
		sched:    cfg.Scheduler,
		exec:     cfg.Executor,
		configs:  cfg.Configs,
		timeout:  timeout,
		managers: make(map[types.SourceID]*Manager),
	}
}

// InitializeSources makes sure every source of round id's global config
// has a Manager and refreshes each with round id's verifier limits.
func (r *Router) InitializeSources(id types.RoundID) {
	g, ok := r.configs.GlobalConfig(id)
	if !ok {
		r.sched.Fatal(fmt.Errorf("%w: global config for round %d", ErrNoConfig, id))
		return
	}
	for _, s := range g.Sources {
		m, ok := r.managers[s.SourceID]
		if !ok {
			m = newManager(s.SourceID, r)
			r.managers[s.SourceID] = m
			r.log.Info("source manager created", "source", s.SourceID, "round", id)
		}
		m.RefreshLatestRoundID(id)
	}
}

// Validate hands a to the Manager of its source. A missing Manager is a
// configuration fault: it is reported as fatal and a is closed as error.
func (r *Router) Validate(a *attestation.Attestation) {
	m, ok := r.managers[a.Source()]
	if !ok {
		r.sched.Fatal(fmt.Errorf("%w: %s (round %d)", ErrNoManager, a.Source(), a.RoundID))
		a.Status = types.AttestationError
		a.Err = ErrNoManager
		if a.Round != nil {
			a.Round.OnAttestationProcessed(a)
		}
		return
	}
	m.Validate(a)
}

// Manager returns the manager of a source.
func (r *Router) Manager(id types.SourceID) (*Manager, bool) {
	m, ok := r.managers[id]
	return m, ok
}
