package networking

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// SummaryHandler processes a round summary received from a peer.
type SummaryHandler func(ctx context.Context, s *RoundSummary, from peer.ID) error

type MessageHandlers struct {
	OnSummary SummaryHandler
}

// HandleSummaryMessage decodes and processes an incoming summary.
func (h *MessageHandlers) HandleSummaryMessage(ctx context.Context, data []byte, from peer.ID) error {
	decoded, err := DecompressMessage(data)
	if err != nil {
		return fmt.Errorf("decompress summary: %w", err)
	}

	var s RoundSummary
	if err := s.UnmarshalSSZ(decoded); err != nil {
		return fmt.Errorf("unmarshal summary: %w", err)
	}

	if h.OnSummary != nil {
		return h.OnSummary(ctx, &s, from)
	}
	return nil
}
