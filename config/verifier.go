package config

import (
	"fmt"

	"github.com/geanlabs/attester/types"
)

// VerifierRoutes configures where and how fast attestations of each source
// are verified, from StartRoundID on.
type VerifierRoutes struct {
	StartRoundID types.RoundID   `yaml:"startRoundId"`
	Sources      []VerifierSource `yaml:"sources"`
}

// VerifierSource holds the dispatch limits and routes of one source.
type VerifierSource struct {
	SourceID                  types.SourceID `yaml:"sourceId"`
	MaxRequestsPerSecond      int            `yaml:"maxRequestsPerSecond"`
	MaxProcessingTransactions int            `yaml:"maxProcessingTransactions"`
	MaxFailedRetries          int            `yaml:"maxFailedRetries"`
	DelayBeforeRetryMs        int            `yaml:"delayBeforeRetryMs"`
	DefaultURL                string         `yaml:"defaultUrl"`
	DefaultAPIKey             string         `yaml:"defaultApiKey"`
	Routes                    []Route        `yaml:"routes"`
}

// Route sends a set of attestation types to a verifier. An empty URL falls
// back to the source default.
type Route struct {
	AttestationTypes []types.AttestationType `yaml:"attestationTypes"`
	URL              string                  `yaml:"url"`
	APIKey           string                  `yaml:"apiKey"`
}

// Validate rejects duplicate sources and duplicate (source, type) routes.
func (v *VerifierRoutes) Validate() error {
	sources := make(map[types.SourceID]bool, len(v.Sources))
	for _, s := range v.Sources {
		if sources[s.SourceID] {
			return fmt.Errorf("%w: routes %d: %s", ErrDuplicateSource, v.StartRoundID, s.SourceID)
		}
		sources[s.SourceID] = true

		seen := make(map[types.AttestationType]bool)
		for _, r := range s.Routes {
			if r.URL == "" && s.DefaultURL == "" {
				return fmt.Errorf("%w: routes %d: %s has a route without url", ErrInvalidConfig, v.StartRoundID, s.SourceID)
			}
			for _, t := range r.AttestationTypes {
				if seen[t] {
					return fmt.Errorf("%w: routes %d: %s %s", ErrDuplicateType, v.StartRoundID, s.SourceID, t)
				}
				seen[t] = true
			}
		}
	}
	return nil
}
