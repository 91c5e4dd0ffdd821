// Package source dispatches attestations to verifiers, one Manager per
// data source, under per-round weight budgets and per-source rate limits.
package source

import (
	"log/slog"

	"github.com/geanlabs/attester/attestation"
	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/types"
)

// Limiter enforces one source's weight budget within one round.
type Limiter struct {
	cfg     *config.SourceLimiter
	current uint64
	log     *slog.Logger
}

func NewLimiter(cfg *config.SourceLimiter, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{cfg: cfg, log: logger}
}

// CanProceed charges the attestation's type weight against the budget.
// An attestation whose weight would take the total past the budget is
// marked overLimit. An attestation type with no weight is marked failed.
func (l *Limiter) CanProceed(a *attestation.Attestation) bool {
	w, ok := l.cfg.Weight(a.Type())
	if !ok {
		l.log.Warn("no weight for attestation type",
			"round", a.RoundID,
			"source", a.Source(),
			"type", a.Type(),
		)
		a.Status = types.AttestationFailed
		return false
	}
	if l.current+w > l.cfg.MaxTotalRoundWeight {
		a.Status = types.AttestationOverLimit
		return false
	}
	l.current += w
	return true
}

// Weight returns the weight used so far.
func (l *Limiter) Weight() uint64 {
	return l.current
}
