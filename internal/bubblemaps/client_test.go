package bubblemaps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/bubblescope/internal/domain"
)

const addr = "0xdac17f958d2ee523a2206206994597c13d831ec7"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("chain") != "eth" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch {
		case r.URL.Query().Get("token") != addr:
			fmt.Fprintf(w, `{"message":%q}`, NoDataMessage)
		case r.URL.Path == "/map-data":
			fmt.Fprint(w, `{"full_name":"Tether","symbol":"USDT","chain":"eth","nodes":[{"address":"0x1","amount":10}],"links":[]}`)
		case r.URL.Path == "/map-metadata":
			fmt.Fprint(w, `{"decentralisation_score":42.5,"dt_update":"2024-01-02","identified_supply":{"percent_in_cexs":12.5},"status":"OK"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_MapData(t *testing.T) {
	ts := newServer(t)
	c := NewClient(nil, ts.URL)

	raw, err := c.MapData(context.Background(), domain.ChainETH, addr)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"symbol":"USDT"`)

	raw, err = c.MapData(context.Background(), domain.ChainETH, "0x0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestClient_MapMetadata(t *testing.T) {
	ts := newServer(t)
	c := NewClient(nil, ts.URL)

	m, err := c.MapMetadata(context.Background(), domain.ChainETH, addr)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 42.5, m.Score)
	assert.Equal(t, "2024-01-02", m.LastUpdated)
	assert.Equal(t, 12.5, m.SupplyDistribution["percent_in_cexs"])

	m, err = c.MapMetadata(context.Background(), domain.ChainETH, "0x0")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestClient_UpstreamError(t *testing.T) {
	ts := newServer(t)
	c := NewClient(nil, ts.URL)

	_, err := c.MapData(context.Background(), domain.ChainBSC, addr)
	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
}

func TestClient_BlockPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "<html><title>Attention Required! | Cloudflare</title></html>")
	}))
	defer ts.Close()

	c := NewClient(nil, ts.URL)
	_, err := c.MapMetadata(context.Background(), domain.ChainETH, addr)

	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, "Cloudflare", upstream.BlockedBy)
	assert.Empty(t, upstream.Body)
}
