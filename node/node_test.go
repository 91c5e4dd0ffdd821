package node

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/networking"
	"github.com/geanlabs/attester/round"
	"github.com/geanlabs/attester/storage"
	"github.com/geanlabs/attester/storage/memory"
	"github.com/geanlabs/attester/storage/pebblestore"
	"github.com/geanlabs/attester/types"
	"github.com/stretchr/testify/require"
)

func TestOpenStore(t *testing.T) {
	s, err := openStore(config.DatabaseConfig{})
	require.NoError(t, err)
	require.IsType(t, &memory.Store{}, s)
	require.NoError(t, s.Close())

	s, err = openStore(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	require.IsType(t, &pebblestore.Store{}, s)

	state := storage.NewState(s)
	require.NoError(t, state.SaveRoundBitVoteResult(7, []byte{0x80}))
	id, ok, err := state.LatestRound()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.RoundID(7), id)
	require.NoError(t, state.Close())
}

func TestSummaryMessage(t *testing.T) {
	s := round.Summary{
		ID:            42,
		Submitter:     common.HexToAddress("0x5ab"),
		Status:        types.RoundRevealed,
		MerkleRoot:    common.Hash{0x01},
		Attestations:  5,
		Valid:         4,
		Chosen:        3,
		BitVoteResult: []byte{0xe0},
	}
	msg := toMessage(s)
	require.Equal(t, uint32(3), msg.ChosenCount)

	data, err := msg.MarshalSSZ()
	require.NoError(t, err)
	decoded := new(networking.RoundSummary)
	require.NoError(t, decoded.UnmarshalSSZ(data))
	require.Equal(t, s, fromMessage(decoded))
}
