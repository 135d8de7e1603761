//go:build integration

package test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/bubblescope/internal/browser"
	"github.com/FranksOps/bubblescope/internal/bubblemaps"
	"github.com/FranksOps/bubblescope/internal/coingecko"
	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/enrich"
	"github.com/FranksOps/bubblescope/internal/pipeline"
	"github.com/FranksOps/bubblescope/internal/render"
	"github.com/FranksOps/bubblescope/internal/resolver"
	"github.com/FranksOps/bubblescope/internal/storage"
	"github.com/FranksOps/bubblescope/internal/storage/sqlite"
	"github.com/FranksOps/bubblescope/pkg/ratelimit"
)

const usdt = "0xdac17f958d2ee523a2206206994597c13d831ec7"

const coinDetail = `{
	"id": "tether", "symbol": "usdt", "name": "Tether",
	"platforms": {"ethereum": "` + usdt + `"},
	"description": {"en": "Tether is a stablecoin."},
	"links": {"homepage": ["https://tether.to/"], "twitter_screen_name": "Tether_to"},
	"community_data": {"twitter_followers": 1000},
	"market_data": {
		"market_cap": {"usd": 83000000000},
		"total_volume": {"usd": 41000000000},
		"current_price": {"usd": 1.0001},
		"total_supply": 83000000000,
		"circulating_supply": 82000000000
	}
}`

func coinGecko(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"coins":[{"id":"tether","symbol":"USDT","name":"Tether"},{"id":"fantom-usdt","symbol":"FUSDT","name":"Fantom USDT"},{"id":"usdt-sol","symbol":"usdt","name":"USDT (Solana only)"}]}`)
	})
	mux.HandleFunc("/coins/tether", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, coinDetail)
	})
	mux.HandleFunc("/coins/usdt-sol", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"usdt-sol","symbol":"usdt","name":"USDT (Solana only)","platforms":{"solana":"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"}}`)
	})
	mux.HandleFunc("/coins/ethereum/contract/"+usdt, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, coinDetail)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func bubbleMaps(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/map-data", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"full_name":"Tether","symbol":"USDT","chain":"eth","dt_update":"2025-01-01","nodes":[{"address":"0x1","amount":10,"percentage":60},{"address":"0x2","amount":5,"percentage":40}],"links":[{"source":0,"target":1}]}`)
	})
	mux.HandleFunc("/map-metadata", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"decentralisation_score":42.5,"dt_update":"2025-01-01","identified_supply":{"percent_in_cexs":12.5},"status":"OK"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// fetchCapturer stands in for Chrome: it fetches the published page and
// returns a solid PNG, which proves the artifact round trip.
type fetchCapturer struct{}

func (fetchCapturer) Capture(ctx context.Context, url, selector string, settle time.Duration) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("<html")) {
		return nil, fmt.Errorf("capture %s: status %d", url, resp.StatusCode)
	}

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := range 40 {
		for y := range 20 {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func capturer(t *testing.T) pipeline.Capturer {
	if os.Getenv("CHROME_PATH") == "" {
		return fetchCapturer{}
	}
	c := browser.New(browser.Config{ExecPath: os.Getenv("CHROME_PATH"), NoSandbox: true, Noise: render.NoiseSelectors}, slog.Default())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIntegration_SearchAndRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cg := coinGecko(t)
	bm := bubbleMaps(t)

	var artifacts http.Handler
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		artifacts.ServeHTTP(w, r)
	}))
	defer site.Close()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "artifacts.db"), site.URL)
	require.NoError(t, err)
	defer store.Close()
	artifacts = storage.Handler(store, nil)

	limiter := ratelimit.NewLimiter(30, time.Minute)
	gecko := coingecko.NewClient(nil, coingecko.Config{SearchURL: cg.URL, BaseURL: cg.URL, APIKey: "test"})
	maps := bubblemaps.NewClient(nil, bm.URL)

	res := resolver.New(gecko, limiter, resolver.Config{}, nil)
	cands, err := res.Search(ctx, "usdt", domain.ChainETH)
	require.NoError(t, err)
	require.Len(t, cands, 1, "FUSDT is not an exact match and the Solana-only coin is dropped")
	assert.Equal(t, usdt, cands[0].ContractAddress)
	assert.Equal(t, 3, limiter.InWindow(), "one search plus one detail call per exact match")

	renderer, err := render.New("")
	require.NoError(t, err)

	fetcher := enrich.NewFetcher(gecko, maps, limiter, nil)
	p := pipeline.New(fetcher, renderer, capturer(t), store, nil, pipeline.Config{GraphSettle: 2 * time.Second}, nil)

	result, err := p.Run(ctx, cands[0].ContractAddress, domain.ChainETH)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status, "failures: %+v", result.Failures)
	assert.Equal(t, "USDT", result.TokenData.Symbol)
	assert.Equal(t, 42.5, result.Metrics.Score)

	for _, u := range []string{result.GraphPageURL, result.TokenData.BubbleScreenshotURL, result.ScreenshotURL} {
		require.True(t, strings.HasPrefix(u, site.URL+storage.RoutePrefix), u)
	}

	resp, err := http.Get(result.ScreenshotURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "image/"), resp.Header.Get("Content-Type"))

	page, err := http.Get(result.GraphPageURL)
	require.NoError(t, err)
	defer page.Body.Close()
	body, _ := io.ReadAll(page.Body)
	assert.Contains(t, string(body), "Tether (USDT) on ETH")
}
