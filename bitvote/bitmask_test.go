package bitvote

import (
	"testing"

	"github.com/geanlabs/attester/types"
	"github.com/stretchr/testify/require"
)

func TestBitmaskLayout(t *testing.T) {
	m := FromIndices([]int{0, 7, 8, 12}, 16)
	require.Equal(t, "0x8188", m.Hex())
	require.Equal(t, 4, m.Ones())
	require.Equal(t, []int{0, 7, 8, 12}, m.Indices())
	require.True(t, m.Has(12))
	require.False(t, m.Has(13))
	require.False(t, m.Has(200))
}

func TestFromIndicesIgnoresOutOfRange(t *testing.T) {
	m := FromIndices([]int{-1, 2, 5}, 4)
	require.Equal(t, []int{2}, m.Indices())
	require.Len(t, m, 1)
}

func TestAndPadsShorter(t *testing.T) {
	a, err := ParseHex("0xff0f")
	require.NoError(t, err)
	b, err := ParseHex("0x3c")
	require.NoError(t, err)

	got := And(a, b)
	require.Equal(t, "0x3c00", got.Hex())
	require.Equal(t, got, And(b, a))
}

func TestParseHex(t *testing.T) {
	m, err := ParseHex("0x")
	require.NoError(t, err)
	require.True(t, m.IsZero())

	_, err = ParseHex("0xzz")
	require.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	m := FromIndices([]int{1, 2}, 8)
	payload := Encode(types.RoundID(513), m)
	require.Equal(t, []byte{0x01, 0x60}, payload)

	check, got, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, byte(1), check)
	require.Equal(t, m, got)

	_, _, err = Decode(nil)
	require.ErrorIs(t, err, ErrEmptyVote)
}
