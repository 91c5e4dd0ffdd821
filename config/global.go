package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/geanlabs/attester/types"
)

// GlobalConfig is the attestation configuration in force from StartRoundID
// until the next config starts.
type GlobalConfig struct {
	StartRoundID                types.RoundID    `yaml:"startRoundId"`
	ConsensusSubsetSize         int              `yaml:"consensusSubsetSize"`
	DefaultSetAssignerAddresses []common.Address `yaml:"defaultSetAssignerAddresses"`
	Sources                     []SourceLimiter  `yaml:"sources"`

	sourceIndex map[types.SourceID]*SourceLimiter
}

// SourceLimiter is the per round budget of one source.
type SourceLimiter struct {
	SourceID            types.SourceID `yaml:"sourceId"`
	MaxTotalRoundWeight uint64         `yaml:"maxTotalRoundWeight"`
	AttestationTypes    []TypeWeight   `yaml:"attestationTypes"`
}

// TypeWeight is the verification cost of one attestation type.
type TypeWeight struct {
	Type   types.AttestationType `yaml:"type"`
	Weight uint64                `yaml:"weight"`
}

// Initialize validates the config and builds its lookup indexes.
func (g *GlobalConfig) Initialize() error {
	if g.ConsensusSubsetSize <= 0 {
		return fmt.Errorf("%w: round %d: consensusSubsetSize must be positive", ErrInvalidConfig, g.StartRoundID)
	}
	if len(g.DefaultSetAssignerAddresses) == 0 {
		return fmt.Errorf("%w: round %d: no default set assigners", ErrInvalidConfig, g.StartRoundID)
	}

	g.sourceIndex = make(map[types.SourceID]*SourceLimiter, len(g.Sources))
	for i := range g.Sources {
		s := &g.Sources[i]
		if _, dup := g.sourceIndex[s.SourceID]; dup {
			return fmt.Errorf("%w: round %d: %s", ErrDuplicateSource, g.StartRoundID, s.SourceID)
		}
		seen := make(map[types.AttestationType]bool, len(s.AttestationTypes))
		for _, tw := range s.AttestationTypes {
			if seen[tw.Type] {
				return fmt.Errorf("%w: round %d: %s %s", ErrDuplicateType, g.StartRoundID, s.SourceID, tw.Type)
			}
			seen[tw.Type] = true
		}
		g.sourceIndex[s.SourceID] = s
	}
	return nil
}

// SourceLimiter returns the limiter config of a source.
func (g *GlobalConfig) SourceLimiter(source types.SourceID) (*SourceLimiter, bool) {
	s, ok := g.sourceIndex[source]
	return s, ok
}

// IsSupported reports whether the config assigns a weight to the pair.
func (g *GlobalConfig) IsSupported(source types.SourceID, typ types.AttestationType) bool {
	s, ok := g.sourceIndex[source]
	if !ok {
		return false
	}
	_, ok = s.Weight(typ)
	return ok
}

// Weight returns the weight of an attestation type.
func (s *SourceLimiter) Weight(typ types.AttestationType) (uint64, bool) {
	for _, tw := range s.AttestationTypes {
		if tw.Type == typ {
			return tw.Weight, true
		}
	}
	return 0, false
}
