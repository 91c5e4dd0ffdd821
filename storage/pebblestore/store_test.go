package pebblestore

import (
	"testing"

	"github.com/geanlabs/attester/storage"
	"github.com/geanlabs/attester/types"
	"github.com/stretchr/testify/require"
)

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)

	_, ok, err := s.LatestRound()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.PutRound(&storage.RoundResult{RoundID: 3, Comment: "three"}))
	require.NoError(t, s.PutRound(&storage.RoundResult{RoundID: 300, BitVoteResult: []byte{0xc0}}))
	require.NoError(t, s.PutRound(&storage.RoundResult{RoundID: 20}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	r, ok, err := s.GetRound(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "three", r.Comment)

	r, ok, err = s.GetRound(300)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0xc0}, r.BitVoteResult)

	_, ok, err = s.GetRound(4)
	require.NoError(t, err)
	require.False(t, ok)

	latest, ok, err := s.LatestRound()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.RoundID(300), latest)
}

func TestStore_WithState(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	state := storage.NewState(s)
	defer state.Close()

	require.NoError(t, state.SaveRoundRevealed(9))
	r, ok, err := state.GetRound(9)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, r.Flags.Has(storage.FlagRevealed))
}
