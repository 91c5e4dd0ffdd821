// Package node assembles an attestation client from its configuration.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/geanlabs/attester/attestation"
	"github.com/geanlabs/attester/chain"
	"github.com/geanlabs/attester/clock"
	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/globalconfig"
	"github.com/geanlabs/attester/internal/loop"
	"github.com/geanlabs/attester/networking"
	"github.com/geanlabs/attester/round"
	"github.com/geanlabs/attester/source"
	"github.com/geanlabs/attester/storage"
	"github.com/geanlabs/attester/storage/memory"
	"github.com/geanlabs/attester/storage/pebblestore"
	"github.com/geanlabs/attester/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

// chainWorkers bounds concurrent chain calls (submissions, default set
// lookups).
const chainWorkers = 8

type Node struct {
	config *config.ClientConfig
	logger *slog.Logger

	loop      *loop.Loop
	clock     *clock.RoundClock
	verifiers pond.Pool
	chainPool pond.Pool
	globals   *globalconfig.Manager
	state     *storage.State
	rounds    *round.Manager
	collector *chain.Collector
	rpc       *ethclient.Client
	client    *chain.Client
	net       *networking.Service

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a node. Nothing runs until Start.
func New(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	n := &Node{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		clock:  clock.New(cfg.Epochs.FirstEpochStart(), cfg.Epochs.EpochPeriod(), cfg.Epochs.BitVoteWindow()),
		loop:   loop.New(loop.Config{Logger: logger}),
	}
	if err := n.build(); err != nil {
		n.close()
		return nil, err
	}
	return n, nil
}

func (n *Node) build() error {
	cfg := n.config
	verifyTimeout := time.Duration(cfg.VerifierTimeoutSec) * time.Second

	globals, err := globalconfig.New(globalconfig.Config{
		GlobalDir:  cfg.GlobalConfigurationsFolder,
		RoutesDir:  cfg.VerifierRoutesFolder,
		ReloadSpec: cfg.ConfigReloadSpec,
		HTTPClient: &http.Client{Timeout: verifyTimeout},
		Logger:     n.logger,
	})
	if err != nil {
		return fmt.Errorf("load configurations: %w", err)
	}
	n.globals = globals

	store, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	n.state = storage.NewState(store)
	last, resumed, err := n.state.LatestRound()
	if err != nil {
		return fmt.Errorf("read latest round: %w", err)
	}
	if resumed {
		n.logger.Info("resuming from stored rounds", "latest_round", last)
	}

	client, rpc, err := chain.Dial(n.ctx, cfg.Chain, n.logger)
	if err != nil {
		return fmt.Errorf("connect chain: %w", err)
	}
	n.client, n.rpc = client, rpc

	n.verifiers = pond.NewPool(cfg.VerifierWorkers, pond.WithContext(n.ctx))
	n.chainPool = pond.NewPool(chainWorkers, pond.WithContext(n.ctx))

	sources := source.NewRouter(source.RouterConfig{
		Scheduler:     n.loop,
		Executor:      n.verifiers,
		Configs:       globals,
		VerifyTimeout: verifyTimeout,
		Logger:        n.logger,
	})

	current := n.clock.RoundForTime(time.Now())
	startRound := max(current, globals.FirstRound())
	n.rounds = round.NewManager(round.Config{
		Scheduler:     n.loop,
		Executor:      n.chainPool,
		Clock:         n.clock,
		Timing:        cfg.Timing,
		Chain:         client,
		State:         n.state,
		Sources:       sources,
		Configs:       globals,
		StartRoundID:  startRound,
		SubmitTimeout: time.Duration(cfg.Chain.ReceiptTimeoutSec) * time.Second * 2,
		OnFinalise:    n.publishSummary,
		Logger:        n.logger,
	})

	startBlock := cfg.Chain.StartBlock
	if startBlock == 0 {
		startBlock, err = chain.BlockBefore(n.ctx, rpc, n.clock.RoundStart(startRound))
		if err != nil {
			return fmt.Errorf("find start block: %w", err)
		}
	}
	n.collector = chain.NewCollector(chain.CollectorConfig{
		Source:         rpc,
		StateConnector: common.HexToAddress(cfg.Chain.StateConnector),
		BitVoting:      common.HexToAddress(cfg.Chain.BitVoting),
		StartBlock:     startBlock,
		PollInterval:   time.Duration(cfg.Chain.PollIntervalMs) * time.Millisecond,
		Handlers:       n.eventHandlers(),
		Logger:         n.logger,
	})

	if len(cfg.Network.ListenAddrs) > 0 {
		if err := n.buildNetwork(); err != nil {
			return err
		}
	}
	return nil
}

func openStore(cfg config.DatabaseConfig) (storage.Store, error) {
	if cfg.Path == "" {
		return memory.New(), nil
	}
	s, err := pebblestore.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func (n *Node) buildNetwork() error {
	cfg := n.config.Network
	hc := networking.HostConfig{ListenAddrs: cfg.ListenAddrs}
	if cfg.NodeKeyFile != "" {
		key, err := networking.LoadNodeKey(cfg.NodeKeyFile)
		if err != nil {
			return err
		}
		hc.PrivateKey = key
	}
	h, err := networking.NewHost(n.ctx, hc)
	if err != nil {
		return fmt.Errorf("create host: %w", err)
	}
	addrs, err := cfg.AllBootnodes()
	if err != nil {
		h.Close()
		return fmt.Errorf("load bootnodes: %w", err)
	}
	bootnodes, err := networking.ParseBootnodes(addrs)
	if err != nil {
		h.Close()
		return fmt.Errorf("parse bootnodes: %w", err)
	}
	svc, err := networking.NewService(n.ctx, networking.ServiceConfig{
		Host:      h,
		Network:   cfg.Name,
		Handlers:  &networking.MessageHandlers{OnSummary: n.handleSummary},
		Bootnodes: bootnodes,
		Logger:    n.logger,
	})
	if err != nil {
		h.Close()
		return fmt.Errorf("create networking service: %w", err)
	}
	n.net = svc
	return nil
}

// eventHandlers moves collected events onto the loop.
func (n *Node) eventHandlers() chain.EventHandlers {
	return chain.EventHandlers{
		OnRequest: func(ev attestation.RequestEvent) {
			n.loop.Post("event.request", func() { n.rounds.OnAttestationRequest(ev) })
		},
		OnBitVote: func(ev attestation.BitVoteEvent) {
			n.loop.Post("event.bitVote", func() { n.rounds.OnBitVoteEvent(ev) })
		},
		OnRoundFinalised: func(ev attestation.RoundFinalisedEvent) {
			n.loop.Post("event.roundFinalised", func() { n.rounds.OnRoundFinalised(ev) })
		},
		OnTimestamp: func(sec uint64) {
			n.loop.Post("event.timestamp", func() { n.rounds.OnLastNetworkTimestamp(sec) })
		},
	}
}

// publishSummary runs on the loop; the publish itself goes to the chain
// pool.
func (n *Node) publishSummary(s round.Summary) {
	if n.net == nil {
		return
	}
	msg := toMessage(s)
	err := n.chainPool.Go(func() {
		if err := n.net.PublishSummary(n.ctx, msg); err != nil {
			n.logger.Warn("failed to publish round summary", "round", msg.RoundID, "err", err)
		}
	})
	if err != nil {
		n.logger.Warn("round summary dropped", "round", msg.RoundID, "err", err)
	}
}

func (n *Node) handleSummary(_ context.Context, s *networking.RoundSummary, from peer.ID) error {
	if s.Submitter == n.client.Address() {
		return nil
	}
	sum := fromMessage(s)
	n.loop.Post("net.summary", func() { n.rounds.OnPeerSummary(from.String(), sum) })
	return nil
}

func toMessage(s round.Summary) *networking.RoundSummary {
	return &networking.RoundSummary{
		RoundID:          s.ID,
		Submitter:        s.Submitter,
		Status:           s.Status,
		MerkleRoot:       s.MerkleRoot,
		AttestationCount: uint32(s.Attestations),
		ValidCount:       uint32(s.Valid),
		ChosenCount:      uint32(s.Chosen),
		BitVoteResult:    s.BitVoteResult,
	}
}

func fromMessage(m *networking.RoundSummary) round.Summary {
	return round.Summary{
		ID:            m.RoundID,
		Submitter:     m.Submitter,
		Status:        m.Status,
		MerkleRoot:    m.MerkleRoot,
		Attestations:  int(m.AttestationCount),
		Valid:         int(m.ValidCount),
		Chosen:        int(m.ChosenCount),
		BitVoteResult: m.BitVoteResult,
	}
}

// Start begins node operation.
func (n *Node) Start() error {
	if err := n.globals.Start(); err != nil {
		return err
	}
	if n.net != nil {
		n.net.Start()
	}

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		n.loop.Run(n.ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.collector.Run(n.ctx)
	}()
	n.loop.Post("rounds.start", n.rounds.Start)

	n.logger.Info("node started",
		"label", n.config.Label,
		"address", n.client.Address(),
		"current_round", n.clock.RoundForTime(time.Now()),
		"first_block", n.collector.NextBlock(),
		"network", n.net != nil,
	)
	return nil
}

// Failures delivers the first fatal error of the round engine.
func (n *Node) Failures() <-chan error {
	return n.loop.Failures()
}

// Stop gracefully shuts down the node.
func (n *Node) Stop() {
	done := make(chan struct{})
	n.loop.Post("rounds.stop", func() {
		n.rounds.Stop()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		n.logger.Warn("round manager did not stop in time")
	}
	n.cancel()
	n.wg.Wait()
	n.globals.Stop()
	n.close()
	n.logger.Info("node stopped")
}

// close releases whatever build acquired.
func (n *Node) close() {
	n.cancel()
	if n.net != nil {
		n.net.Stop()
	}
	if n.verifiers != nil {
		n.verifiers.StopAndWait()
	}
	if n.chainPool != nil {
		n.chainPool.StopAndWait()
	}
	if n.rpc != nil {
		n.rpc.Close()
	}
	if n.state != nil {
		if err := n.state.Close(); err != nil {
			n.logger.Warn("failed to close database", "err", err)
		}
	}
}

// CurrentRound returns the round the wall clock is in.
func (n *Node) CurrentRound() types.RoundID {
	return n.clock.RoundForTime(time.Now())
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	if n.net == nil {
		return 0
	}
	return n.net.PeerCount()
}
