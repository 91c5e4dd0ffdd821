package verifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/geanlabs/attester/attestation"
	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/types"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, url string) *HTTPRouter {
	t.Helper()
	r, err := NewHTTPRouter(&config.VerifierRoutes{
		StartRoundID: 4,
		Sources: []config.VerifierSource{{
			SourceID:                  3,
			MaxProcessingTransactions: 2,
			DefaultURL:                url,
			DefaultAPIKey:             "key",
			Routes: []config.Route{
				{AttestationTypes: []types.AttestationType{1, 2}},
				{AttestationTypes: []types.AttestationType{5}, URL: url + "/special"},
			},
		}},
	}, nil)
	require.NoError(t, err)
	return r
}

func TestHTTPRouter_Routing(t *testing.T) {
	r := newTestRouter(t, "http://verifier")

	require.Equal(t, types.RoundID(4), r.StartRoundID())
	require.True(t, r.IsSupported(3, 1))
	require.True(t, r.IsSupported(3, 5))
	require.False(t, r.IsSupported(3, 3))
	require.False(t, r.IsSupported(4, 1))

	src, ok := r.SourceConfig(3)
	require.True(t, ok)
	require.Equal(t, 2, src.MaxProcessingTransactions)
}

func TestHTTPRouter_Verify(t *testing.T) {
	request := attestation.EncodeHeader(attestation.Header{Type: 1, Source: 3}, []byte{0xbe, 0xef})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "key", req.Header.Get("X-API-KEY"))

		var body struct {
			Request hexutil.Bytes `json:"request"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		require.Equal(t, request, []byte(body.Request))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","data":{"status":"OK","response":"0x0102"}}`))
	}))
	defer srv.Close()

	v, err := newTestRouter(t, srv.URL).Verify(context.Background(), request)
	require.NoError(t, err)
	require.Equal(t, StatusOK, v.Status)
	require.Equal(t, []byte{1, 2}, []byte(v.Response))
}

func TestHTTPRouter_VerifyErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ERROR","errorMessage":"boom"}`))
	}))
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	_, err := r.Verify(context.Background(), attestation.EncodeHeader(attestation.Header{Type: 1, Source: 3}, nil))
	require.ErrorIs(t, err, ErrAPIResponse)

	_, err = r.Verify(context.Background(), attestation.EncodeHeader(attestation.Header{Type: 9, Source: 3}, nil))
	require.ErrorIs(t, err, ErrNoRoute)

	_, err = r.Verify(context.Background(), []byte{1})
	require.ErrorIs(t, err, attestation.ErrShortRequest)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		status Status
		want   Summary
	}{
		{StatusOK, SummaryValid},
		{StatusNotConfirmed, SummaryInvalid},
		{StatusPaymentSummaryError, SummaryInvalid},
		{StatusSystemFailure, SummaryIndeterminate},
		{StatusNeedsMoreChecks, SummaryIndeterminate},
		{Status("SOMETHING_NEW"), SummaryIndeterminate},
	}
	for _, tt := range tests {
		if got := Summarize(tt.status); got != tt.want {
			t.Errorf("Summarize(%s) = %d, want %d", tt.status, got, tt.want)
		}
	}
}
