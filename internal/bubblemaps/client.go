// Package bubblemaps fetches holder graphs and decentralization metadata
// from the Bubblemaps legacy API.
package bubblemaps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/bubblescope/internal/blockpage"
	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/metrics"
	"github.com/FranksOps/bubblescope/pkg/httpclient"
)

const (
	DefaultBaseURL = "https://api-legacy.bubblemaps.io"

	// NoDataMessage is the body message Bubblemaps sends for unknown tokens.
	NoDataMessage = "Data not available for this token"

	service      = "bubblemaps"
	maxBodyBytes = 32 << 20
)

// Client is a Bubblemaps API client.
type Client struct {
	http    *httpclient.Client
	baseURL string
}

// NewClient creates a client. A nil hc gets a default client and an empty
// baseURL uses DefaultBaseURL.
func NewClient(hc *httpclient.Client, baseURL string) *Client {
	if hc == nil {
		hc = httpclient.New(httpclient.Config{})
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/")}
}

// MapData returns the raw holder graph. It returns nil, nil when Bubblemaps
// has no data for the token.
func (c *Client) MapData(ctx context.Context, chain domain.Chain, address string) (json.RawMessage, error) {
	return c.fetch(ctx, "map-data", chain, address)
}

// MapMetadata returns the decentralization metadata, or nil, nil when
// Bubblemaps has no data for the token.
func (c *Client) MapMetadata(ctx context.Context, chain domain.Chain, address string) (*domain.DecentralizationMetrics, error) {
	raw, err := c.fetch(ctx, "map-metadata", chain, address)
	if err != nil || raw == nil {
		return nil, err
	}
	var m domain.DecentralizationMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("bubblemaps: decode map-metadata: %w", err)
	}
	return &m, nil
}

func (c *Client) fetch(ctx context.Context, path string, chain domain.Chain, address string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("chain", string(chain))
	q.Set("token", address)
	u := c.baseURL + "/" + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("bubblemaps: build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		metrics.RecordUpstream(service, path, 0, time.Since(start))
		return nil, fmt.Errorf("bubblemaps: %s: %w", path, err)
	}
	metrics.RecordUpstream(service, path, resp.StatusCode, time.Since(start))

	body, err := httpclient.ReadBody(resp, maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("bubblemaps: %s: %w", path, err)
	}

	// The sentinel comes back on both 200 and error statuses.
	if isNoData(body) {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if src, ok := blockpage.Detect(resp.StatusCode, resp.Header, body); ok {
			metrics.UpstreamBlockedTotal.WithLabelValues(service, src).Inc()
			return nil, &domain.UpstreamError{Service: service, StatusCode: resp.StatusCode, BlockedBy: src}
		}
		b := string(body)
		if len(b) > 256 {
			b = b[:256]
		}
		return nil, &domain.UpstreamError{Service: service, StatusCode: resp.StatusCode, Body: b}
	}

	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, fmt.Errorf("bubblemaps: %s: invalid json body", path)
	}
	return json.RawMessage(body), nil
}

func isNoData(body []byte) bool {
	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return false
	}
	return msg.Message == NoDataMessage
}
