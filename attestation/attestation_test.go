package attestation

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/geanlabs/attester/types"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	h := Header{Type: 1, Source: 3, MIC: common.HexToHash("0x1234")}
	req := EncodeHeader(h, []byte{0xaa, 0xbb})

	require.Len(t, req, HeaderSize+2)
	require.Equal(t, []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x03}, req[:6])

	got, err := ParseHeader(req)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestParseHeader_Short(t *testing.T) {
	_, err := ParseHeader(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrShortRequest)
}

func TestNew(t *testing.T) {
	h := Header{Type: 2, Source: 4}
	a := New(7, RequestEvent{Request: EncodeHeader(h, nil)})
	require.Equal(t, types.RoundID(7), a.RoundID)
	require.Equal(t, -1, a.Index)
	require.Equal(t, types.AttestationUndetermined, a.Status)
	require.Equal(t, types.SourceID(4), a.Source())
	require.Equal(t, types.AttestationType(2), a.Type())

	bad := New(7, RequestEvent{Request: []byte{1, 2}})
	require.Equal(t, types.AttestationFailed, bad.Status)
	require.ErrorIs(t, bad.Err, ErrShortRequest)
}

func TestMICAndCommitmentHash(t *testing.T) {
	h := Header{Type: 1, Source: 3}
	resp := []byte("response")

	mic := MIC(h, resp)
	require.Equal(t, mic, MIC(h, resp))
	require.NotEqual(t, mic, MIC(h, []byte("other")))
	require.NotEqual(t, mic, MIC(Header{Type: 1, Source: 4}, resp))

	c10 := CommitmentHash(h, 10, resp)
	require.NotEqual(t, c10, CommitmentHash(h, 11, resp))
	require.NotEqual(t, mic, CommitmentHash(h, 0, resp), "salt must separate the MIC from the commitment")
}
