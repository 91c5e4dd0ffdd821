// Package pebblestore is a storage.Store on a pebble key-value database. Values
// are snappy compressed SSZ encoded round results.
package pebblestore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/geanlabs/attester/storage"
	"github.com/geanlabs/attester/types"
	"github.com/golang/snappy"
)

var roundPrefix = []byte("round/")

// Store is a pebble backed storage.Store.
type Store struct {
	db *pebble.DB
}

// Open opens or creates the database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func roundKey(id types.RoundID) []byte {
	key := make([]byte, len(roundPrefix)+8)
	copy(key, roundPrefix)
	binary.BigEndian.PutUint64(key[len(roundPrefix):], uint64(id))
	return key
}

func (s *Store) GetRound(id types.RoundID) (*storage.RoundResult, bool, error) {
	value, closer, err := s.db.Get(roundKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	r, err := decode(value)
	if err != nil {
		return nil, false, fmt.Errorf("round %d: %w", id, err)
	}
	return r, true, nil
}

func (s *Store) PutRound(r *storage.RoundResult) error {
	raw, err := r.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("encode round %d: %w", r.RoundID, err)
	}
	return s.db.Set(roundKey(r.RoundID), snappy.Encode(nil, raw), pebble.Sync)
}

func (s *Store) LatestRound() (types.RoundID, bool, error) {
	upper := append([]byte(nil), roundPrefix...)
	upper[len(upper)-1]++

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: roundPrefix, UpperBound: upper})
	if err != nil {
		return 0, false, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, false, nil
	}
	key := iter.Key()
	return types.RoundID(binary.BigEndian.Uint64(key[len(roundPrefix):])), true, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func decode(value []byte) (*storage.RoundResult, error) {
	raw, err := snappy.Decode(nil, value)
	if err != nil {
		return nil, fmt.Errorf("snappy: %w", err)
	}
	r := new(storage.RoundResult)
	if err := r.UnmarshalSSZ(raw); err != nil {
		return nil, fmt.Errorf("ssz: %w", err)
	}
	return r, nil
}
