package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/geanlabs/attester/attestation"
)

const defaultMaxBlockRange = 1000

// LogSource is the read side of the JSON-RPC API. *ethclient.Client
// satisfies it.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error)
}

// EventHandlers receive decoded events in block order. A nil handler
// drops its events.
type EventHandlers struct {
	OnRequest        func(attestation.RequestEvent)
	OnBitVote        func(attestation.BitVoteEvent)
	OnRoundFinalised func(attestation.RoundFinalisedEvent)
	// OnTimestamp receives the timestamp of the last block read.
	OnTimestamp func(unixSec uint64)
}

type CollectorConfig struct {
	Source         LogSource
	StateConnector common.Address
	BitVoting      common.Address
	StartBlock     uint64
	PollInterval   time.Duration
	MaxBlockRange  uint64
	Handlers       EventHandlers
	Logger         *slog.Logger
}

// Collector polls for new blocks and delivers contract events.
type Collector struct {
	src      LogSource
	addrs    []common.Address
	next     uint64
	interval time.Duration
	maxRange uint64
	h        EventHandlers
	log      *slog.Logger
}

func NewCollector(cfg CollectorConfig) *Collector {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		src:      cfg.Source,
		addrs:    []common.Address{cfg.StateConnector, cfg.BitVoting},
		next:     cfg.StartBlock,
		interval: cfg.PollInterval,
		maxRange: cfg.MaxBlockRange,
		h:        cfg.Handlers,
		log:      logger.With("component", "collector"),
	}
	if c.interval <= 0 {
		c.interval = time.Second
	}
	if c.maxRange == 0 {
		c.maxRange = defaultMaxBlockRange
	}
	return c
}

// Run polls until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	c.log.Info("collecting events", "start_block", c.next)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.Poll(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("event poll failed", "next_block", c.next, "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll reads every block from the next unread one up to the chain head.
func (c *Collector) Poll(ctx context.Context) error {
	head, err := c.src.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}

	for c.next <= head {
		to := min(c.next+c.maxRange-1, head)
		logs, err := c.src.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(c.next),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: c.addrs,
			Topics:    [][]common.Hash{{attestationRequestTopic, bitVoteTopic, roundFinalisedTopic}},
		})
		if err != nil {
			return fmt.Errorf("filter logs %d..%d: %w", c.next, to, err)
		}
		header, err := c.src.HeaderByNumber(ctx, new(big.Int).SetUint64(to))
		if err != nil {
			return fmt.Errorf("header %d: %w", to, err)
		}

		for _, l := range logs {
			c.dispatch(l)
		}
		c.next = to + 1
		if c.h.OnTimestamp != nil {
			c.h.OnTimestamp(header.Time)
		}
	}
	return nil
}

func (c *Collector) dispatch(l gethtypes.Log) {
	if l.Removed || len(l.Topics) == 0 {
		return
	}
	switch l.Topics[0] {
	case attestationRequestTopic:
		ev, err := DecodeRequest(l)
		if err != nil {
			c.log.Warn("unparsable attestation request", "block", l.BlockNumber, "err", err)
			return
		}
		if c.h.OnRequest != nil {
			c.h.OnRequest(ev)
		}
	case bitVoteTopic:
		ev, err := DecodeBitVote(l)
		if err != nil {
			c.log.Warn("unparsable bit vote", "block", l.BlockNumber, "err", err)
			return
		}
		if c.h.OnBitVote != nil {
			c.h.OnBitVote(ev)
		}
	case roundFinalisedTopic:
		ev, err := DecodeRoundFinalised(l)
		if err != nil {
			c.log.Warn("unparsable round finalisation", "block", l.BlockNumber, "err", err)
			return
		}
		if c.h.OnRoundFinalised != nil {
			c.h.OnRoundFinalised(ev)
		}
	}
}

// NextBlock returns the next block Poll will read.
func (c *Collector) NextBlock() uint64 {
	return c.next
}

// BlockBefore returns the highest block whose timestamp is before t, or
// block 0 when every block is at or after t.
func BlockBefore(ctx context.Context, src LogSource, t time.Time) (uint64, error) {
	head, err := src.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	target := uint64(t.Unix())

	lo, hi := uint64(0), head
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		h, err := src.HeaderByNumber(ctx, new(big.Int).SetUint64(mid))
		if err != nil {
			return 0, fmt.Errorf("header %d: %w", mid, err)
		}
		if h.Time < target {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}
