// Package verifier routes attestation requests to verifier servers.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/geanlabs/attester/attestation"
	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/types"
)

// Router verifies attestation requests for one configuration period.
// Implementations must be safe for concurrent use.
type Router interface {
	IsSupported(source types.SourceID, typ types.AttestationType) bool
	Verify(ctx context.Context, request []byte) (*Verification, error)
	SourceConfig(source types.SourceID) (*config.VerifierSource, bool)
}

// Verification is a verifier's answer for one request.
type Verification struct {
	Status   Status        `json:"status"`
	Response hexutil.Bytes `json:"response"`
}

type routeKey struct {
	source types.SourceID
	typ    types.AttestationType
}

type route struct {
	url    string
	apiKey string
}

// HTTPRouter posts requests to verifier servers over HTTP.
type HTTPRouter struct {
	cfg     *config.VerifierRoutes
	routes  map[routeKey]route
	sources map[types.SourceID]*config.VerifierSource
	client  *http.Client
}

// NewHTTPRouter builds a router from a routes config. A nil client uses a
// client with a 30 second timeout.
func NewHTTPRouter(cfg *config.VerifierRoutes, client *http.Client) (*HTTPRouter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	r := &HTTPRouter{
		cfg:     cfg,
		routes:  make(map[routeKey]route),
		sources: make(map[types.SourceID]*config.VerifierSource, len(cfg.Sources)),
		client:  client,
	}
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		r.sources[src.SourceID] = src
		for _, rt := range src.Routes {
			target := route{url: rt.URL, apiKey: rt.APIKey}
			if target.url == "" {
				target = route{url: src.DefaultURL, apiKey: src.DefaultAPIKey}
			}
			for _, t := range rt.AttestationTypes {
				r.routes[routeKey{src.SourceID, t}] = target
			}
		}
	}
	return r, nil
}

// StartRoundID returns the first round the router serves.
func (r *HTTPRouter) StartRoundID() types.RoundID {
	return r.cfg.StartRoundID
}

func (r *HTTPRouter) IsSupported(source types.SourceID, typ types.AttestationType) bool {
	_, ok := r.routes[routeKey{source, typ}]
	return ok
}

func (r *HTTPRouter) SourceConfig(source types.SourceID) (*config.VerifierSource, bool) {
	s, ok := r.sources[source]
	return s, ok
}

type verifyRequest struct {
	Request hexutil.Bytes `json:"request"`
}

type apiResponse struct {
	Status       string        `json:"status"`
	Data         *Verification `json:"data"`
	ErrorMessage string        `json:"errorMessage"`
}

// Verify sends the request to the verifier serving its (source, type).
func (r *HTTPRouter) Verify(ctx context.Context, request []byte) (*Verification, error) {
	h, err := attestation.ParseHeader(request)
	if err != nil {
		return nil, err
	}
	target, ok := r.routes[routeKey{h.Source, h.Type}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNoRoute, h.Source, h.Type)
	}

	body, err := json.Marshal(verifyRequest{Request: request})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if target.apiKey != "" {
		req.Header.Set("X-API-KEY", target.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", target.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: http %d: %s", ErrAPIResponse, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Status != "OK" || out.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrAPIResponse, out.ErrorMessage)
	}
	return out.Data, nil
}
