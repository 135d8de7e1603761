// Package enrich fetches the market data, decentralization metrics and
// holder graph for a resolved token.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/bubblescope/internal/coingecko"
	"github.com/FranksOps/bubblescope/internal/domain"
)

// MarketAPI looks up a token by contract address.
type MarketAPI interface {
	ContractToken(ctx context.Context, platform, address string) (*coingecko.CoinDetail, error)
}

// GraphAPI serves holder graphs and their metadata.
type GraphAPI interface {
	MapData(ctx context.Context, chain domain.Chain, address string) (json.RawMessage, error)
	MapMetadata(ctx context.Context, chain domain.Chain, address string) (*domain.DecentralizationMetrics, error)
}

// Limiter gates CoinGecko requests.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Fetcher performs the enrichment lookups. The zero value is not usable.
type Fetcher struct {
	market  MarketAPI
	graph   GraphAPI
	limiter Limiter
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher. limiter may be nil.
func NewFetcher(market MarketAPI, graph GraphAPI, limiter Limiter, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{market: market, graph: graph, limiter: limiter, logger: logger}
}

// FetchMarketData returns the market snapshot for the token, or nil when
// CoinGecko answers with a non-success status. Transport failures are
// returned as errors.
func (f *Fetcher) FetchMarketData(ctx context.Context, address string, chain domain.Chain) (*domain.TokenMarketData, error) {
	if f.limiter != nil {
		if err := f.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	detail, err := f.market.ContractToken(ctx, chain.Platform(), address)
	if err != nil {
		var upstream *domain.UpstreamError
		var rl *domain.RetryAfterError
		if errors.As(err, &upstream) || errors.As(err, &rl) {
			f.logger.Warn("no market data", "chain", chain, "address", address, "err", err)
			return nil, nil
		}
		return nil, fmt.Errorf("enrich: market data: %w", err)
	}
	return detail.Snapshot(), nil
}

// FetchDecentralization returns the Bubblemaps metadata, or nil when the
// token is unknown to Bubblemaps.
func (f *Fetcher) FetchDecentralization(ctx context.Context, address string, chain domain.Chain) (*domain.DecentralizationMetrics, error) {
	m, err := f.graph.MapMetadata(ctx, chain, address)
	if err != nil {
		return nil, fmt.Errorf("enrich: decentralization: %w", err)
	}
	if m == nil {
		f.logger.Info("no decentralization metrics", "chain", chain, "address", address)
	}
	return m, nil
}

// FetchGraph returns the raw holder graph, or nil when the token is unknown
// to Bubblemaps.
func (f *Fetcher) FetchGraph(ctx context.Context, address string, chain domain.Chain) (domain.BubbleGraphDataset, error) {
	raw, err := f.graph.MapData(ctx, chain, address)
	if err != nil {
		return nil, fmt.Errorf("enrich: graph: %w", err)
	}
	if raw == nil {
		f.logger.Info("no bubble graph", "chain", chain, "address", address)
	}
	return raw, nil
}
