package storage

import "github.com/geanlabs/attester/types"

// Store persists round results keyed by round id.
type Store interface {
	GetRound(id types.RoundID) (*RoundResult, bool, error)
	PutRound(r *RoundResult) error
	// LatestRound returns the highest stored round id.
	LatestRound() (types.RoundID, bool, error)
	Close() error
}
