// Package globalconfig selects the attestation config and verifier routes
// in force for a round and keeps the verifier routes fresh.
package globalconfig

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/types"
	"github.com/geanlabs/attester/verifier"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
)

// RouterFactory builds a verifier router from a routes file.
type RouterFactory func(*config.VerifierRoutes) (verifier.Router, error)

type Config struct {
	GlobalDir  string
	RoutesDir  string
	ReloadSpec string
	HTTPClient *http.Client
	NewRouter  RouterFactory
	Logger     *slog.Logger
}

type routerEntry struct {
	start  types.RoundID
	router verifier.Router
}

// Manager owns every loaded config. Lookups take the last entry whose
// start round is not after the requested round.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu      sync.RWMutex
	globals []*config.GlobalConfig
	routers []routerEntry

	// content hash -> router, so unchanged files keep their router
	cache *xsync.Map[string, verifier.Router]
	cron  *cron.Cron
}

// New loads both config folders once.
func New(cfg Config) (*Manager, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NewRouter == nil {
		client := cfg.HTTPClient
		cfg.NewRouter = func(r *config.VerifierRoutes) (verifier.Router, error) {
			return verifier.NewHTTPRouter(r, client)
		}
	}
	if cfg.ReloadSpec == "" {
		cfg.ReloadSpec = config.DefaultConfigReloadSpec
	}

	m := &Manager{
		cfg:   cfg,
		log:   logger.With("component", "globalconfig"),
		cache: xsync.NewMap[string, verifier.Router](),
	}
	if err := m.loadGlobals(); err != nil {
		return nil, err
	}
	if err := m.ReloadVerifierRoutes(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadGlobals() error {
	files, err := config.LoadGlobalConfigs(m.cfg.GlobalDir)
	if err != nil {
		return fmt.Errorf("load global configs: %w", err)
	}
	globals := make([]*config.GlobalConfig, len(files))
	for i, f := range files {
		globals[i] = f.Config
	}

	m.mu.Lock()
	m.globals = globals
	m.mu.Unlock()

	m.log.Info("global configs loaded", "count", len(globals), "first_round", globals[0].StartRoundID)
	return nil
}

// ReloadVerifierRoutes rereads the routes folder. Routers for files whose
// content did not change are reused. On error the previous routers stay.
func (m *Manager) ReloadVerifierRoutes() error {
	files, err := config.LoadVerifierRoutes(m.cfg.RoutesDir)
	if err != nil {
		return fmt.Errorf("load verifier routes: %w", err)
	}

	routers := make([]routerEntry, 0, len(files))
	live := make(map[string]struct{}, len(files))
	created := 0
	for _, f := range files {
		key := crypto.Keccak256Hash(f.Data).Hex()
		live[key] = struct{}{}

		r, ok := m.cache.Load(key)
		if !ok {
			r, err = m.cfg.NewRouter(f.Config)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Path, err)
			}
			m.cache.Store(key, r)
			created++
		}
		routers = append(routers, routerEntry{start: f.Config.StartRoundID, router: r})
	}

	m.cache.Range(func(key string, _ verifier.Router) bool {
		if _, ok := live[key]; !ok {
			m.cache.Delete(key)
		}
		return true
	})

	m.mu.Lock()
	m.routers = routers
	m.mu.Unlock()

	if created > 0 {
		m.log.Info("verifier routes loaded", "files", len(routers), "new", created)
	}
	return nil
}

// GlobalConfig returns the attestation config in force for round id.
func (m *Manager) GlobalConfig(id types.RoundID) (*config.GlobalConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := sort.Search(len(m.globals), func(i int) bool { return m.globals[i].StartRoundID > id })
	if i == 0 {
		return nil, false
	}
	return m.globals[i-1], true
}

// VerifierRouter returns the router in force for round id.
func (m *Manager) VerifierRouter(id types.RoundID) (verifier.Router, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := sort.Search(len(m.routers), func(i int) bool { return m.routers[i].start > id })
	if i == 0 {
		return nil, false
	}
	return m.routers[i-1].router, true
}

// FirstRound returns the earliest round any global config covers.
func (m *Manager) FirstRound() types.RoundID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globals[0].StartRoundID
}

// Start schedules periodic verifier route reloads.
func (m *Manager) Start() error {
	clog := cronLogger{m.log}
	m.cron = cron.New(cron.WithChain(cron.Recover(clog)), cron.WithLogger(clog))
	_, err := m.cron.AddFunc(m.cfg.ReloadSpec, func() {
		if err := m.ReloadVerifierRoutes(); err != nil {
			m.log.Warn("verifier route reload failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reload %q: %w", m.cfg.ReloadSpec, err)
	}
	m.cron.Start()
	return nil
}

func (m *Manager) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// cronLogger bridges cron's logger onto slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "err", err)...)
}
