package memory

import (
	"sync"

	"github.com/geanlabs/attester/storage"
	"github.com/geanlabs/attester/types"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu     sync.RWMutex
	rounds map[types.RoundID]*storage.RoundResult
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{rounds: make(map[types.RoundID]*storage.RoundResult)}
}

func (m *Store) GetRound(id types.RoundID) (*storage.RoundResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (m *Store) PutRound(r *storage.RoundResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[r.RoundID] = r.Clone()
	return nil
}

func (m *Store) LatestRound() (types.RoundID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		latest types.RoundID
		found  bool
	)
	for id := range m.rounds {
		if !found || id > latest {
			latest, found = id, true
		}
	}
	return latest, found, nil
}

func (m *Store) Close() error { return nil }
