// Package coingecko is a client for the CoinGecko search and coin APIs.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/bubblescope/internal/blockpage"
	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/metrics"
	"github.com/FranksOps/bubblescope/pkg/httpclient"
)

const (
	DefaultSearchURL = "https://pro-api.coingecko.com/api/v3"
	DefaultBaseURL   = "https://api.coingecko.com/api/v3"
	APIKeyHeader     = "x-cg-pro-api-key"

	service      = "coingecko"
	maxBodyBytes = 8 << 20
)

// Config configures a Client.
type Config struct {
	// SearchURL serves /search. It is the keyed endpoint.
	SearchURL string
	// BaseURL serves /coins.
	BaseURL string
	APIKey  string
}

// Client talks to CoinGecko. It performs no rate limiting of its own;
// callers gate requests through the shared limiter.
type Client struct {
	http      *httpclient.Client
	searchURL string
	baseURL   string
	apiKey    string
}

// NewClient creates a client on top of hc. A nil hc gets a default client.
func NewClient(hc *httpclient.Client, cfg Config) *Client {
	if hc == nil {
		hc = httpclient.New(httpclient.Config{})
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		http:      hc,
		searchURL: strings.TrimRight(cfg.SearchURL, "/"),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
	}
}

// Search queries /search and returns the coin hits in upstream order.
func (c *Client) Search(ctx context.Context, query string) ([]SearchCoin, error) {
	u := c.searchURL + "/search?query=" + url.QueryEscape(query)

	var out searchResponse
	if err := c.getJSON(ctx, "search", u, true, &out); err != nil {
		return nil, err
	}
	return out.Coins, nil
}

// Coin fetches /coins/{id}. HTTP 429 is returned as *domain.RetryAfterError.
func (c *Client) Coin(ctx context.Context, id string) (*CoinDetail, error) {
	u := c.baseURL + "/coins/" + url.PathEscape(id)

	var out CoinDetail
	if err := c.getJSON(ctx, "coin", u, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ContractToken fetches /coins/{platform}/contract/{address}.
func (c *Client) ContractToken(ctx context.Context, platform, address string) (*CoinDetail, error) {
	u := c.baseURL + "/coins/" + url.PathEscape(platform) + "/contract/" + url.PathEscape(address)

	var out CoinDetail
	if err := c.getJSON(ctx, "contract", u, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, u string, keyed bool, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("coingecko: build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if keyed && c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		metrics.RecordUpstream(service, endpoint, 0, time.Since(start))
		return fmt.Errorf("coingecko: %s: %w", endpoint, err)
	}
	metrics.RecordUpstream(service, endpoint, resp.StatusCode, time.Since(start))

	body, err := httpclient.ReadBody(resp, maxBodyBytes)
	if err != nil {
		return fmt.Errorf("coingecko: %s: %w", endpoint, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &domain.RetryAfterError{Service: service, Wait: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		uerr := &domain.UpstreamError{Service: service, StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
		if src, ok := blockpage.Detect(resp.StatusCode, resp.Header, body); ok {
			metrics.UpstreamBlockedTotal.WithLabelValues(service, src).Inc()
			uerr.BlockedBy, uerr.Body = src, ""
		}
		return uerr
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("coingecko: decode %s: %w", endpoint, err)
	}
	return nil
}

// parseRetryAfter reads a delay in seconds. Unparseable or absent hints
// return zero so the caller applies its default.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
