package networking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	bootnodeRetryInterval = 30 * time.Second
	defaultSeenTTL        = 3 * time.Minute
)

// Service publishes this provider's round summaries and delivers those of
// its peers.
type Service struct {
	host     host.Host
	pubsub   *pubsub.PubSub
	handlers *MessageHandlers
	logger   *slog.Logger

	summaryTopic *pubsub.Topic
	summarySub   *pubsub.Subscription

	// bootnodes that failed the initial connection
	failedBootnodes []peer.AddrInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ServiceConfig struct {
	Host      host.Host
	Network   string
	SeenTTL   time.Duration
	Handlers  *MessageHandlers
	Bootnodes []peer.AddrInfo
	Logger    *slog.Logger
}

// NewService joins the summary topic and dials the bootnodes.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seenTTL := cfg.SeenTTL
	if seenTTL <= 0 {
		seenTTL = defaultSeenTTL
	}

	ps, err := NewGossipSub(ctx, cfg.Host, seenTTL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}
	topic, err := ps.Join(SummaryTopic(cfg.Network))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join summary topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe summary topic: %w", err)
	}

	svc := &Service{
		host:         cfg.Host,
		pubsub:       ps,
		handlers:     cfg.Handlers,
		logger:       logger.With("component", "networking"),
		summaryTopic: topic,
		summarySub:   sub,
		ctx:          ctx,
		cancel:       cancel,
	}

	for _, pi := range cfg.Bootnodes {
		if err := cfg.Host.Connect(ctx, pi); err != nil {
			svc.logger.Warn("failed to connect to bootnode", "peer", pi.ID, "err", err)
			svc.failedBootnodes = append(svc.failedBootnodes, pi)
		} else {
			svc.logger.Info("connected to bootnode", "peer", pi.ID)
		}
	}
	return svc, nil
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.processSummaries()

	if len(s.failedBootnodes) > 0 {
		s.wg.Add(1)
		go s.retryBootnodes()
	}

	s.logger.Info("networking service started",
		"peer_id", s.host.ID(),
		"addrs", s.host.Addrs(),
	)
}

func (s *Service) Stop() {
	s.cancel()
	s.summarySub.Cancel()
	s.wg.Wait()
	s.host.Close()
	s.logger.Info("networking service stopped")
}

// PublishSummary gossips a round summary.
func (s *Service) PublishSummary(ctx context.Context, summary *RoundSummary) error {
	data, err := summary.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return s.summaryTopic.Publish(ctx, CompressMessage(data))
}

func (s *Service) PeerCount() int {
	return len(s.host.Network().Peers())
}

func (s *Service) retryBootnodes() {
	defer s.wg.Done()

	ticker := time.NewTicker(bootnodeRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			var remaining []peer.AddrInfo
			for _, pi := range s.failedBootnodes {
				if err := s.host.Connect(s.ctx, pi); err != nil {
					s.logger.Debug("bootnode reconnect failed", "peer", pi.ID, "err", err)
					remaining = append(remaining, pi)
				} else {
					s.logger.Info("reconnected to bootnode", "peer", pi.ID)
				}
			}
			s.failedBootnodes = remaining
			if len(s.failedBootnodes) == 0 {
				return
			}
		}
	}
}

func (s *Service) processSummaries() {
	defer s.wg.Done()

	for {
		msg, err := s.summarySub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("summary subscription error", "err", err)
			continue
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		if s.handlers == nil {
			continue
		}
		if err := s.handlers.HandleSummaryMessage(s.ctx, msg.Data, msg.ReceivedFrom); err != nil {
			s.logger.Warn("bad summary from peer", "peer", msg.ReceivedFrom, "err", err)
		}
	}
}
