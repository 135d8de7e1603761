// Package resolver turns a token symbol into the contract addresses it has
// on a given chain, staying inside the search API quota.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/bubblescope/internal/coingecko"
	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/metrics"
)

// Limiter gates every outbound request to the search API.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// API is the subset of the CoinGecko client the resolver uses.
type API interface {
	Search(ctx context.Context, query string) ([]coingecko.SearchCoin, error)
	Coin(ctx context.Context, id string) (*coingecko.CoinDetail, error)
}

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config provides the resolver's batching and retry parameters.
type Config struct {
	// BatchSize is the number of candidates resolved concurrently (default 5).
	BatchSize int
	// MaxAttempts bounds non-429 failures per candidate (default 3).
	MaxAttempts int
	// BaseBackoff is the delay before the first retry; it doubles on each
	// subsequent retry (default 2s).
	BaseBackoff time.Duration
	// DefaultRetryAfter is used when a 429 carries no usable hint (default 10s).
	DefaultRetryAfter time.Duration
	// MaxRateLimitWaits caps consecutive 429 waits per candidate and on the
	// initial search (default 5). Any other failure resets the count.
	MaxRateLimitWaits int
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.DefaultRetryAfter <= 0 {
		c.DefaultRetryAfter = 10 * time.Second
	}
	if c.MaxRateLimitWaits <= 0 {
		c.MaxRateLimitWaits = 5
	}
}

// Resolver performs symbol searches.
type Resolver struct {
	api     API
	limiter Limiter
	cfg     Config
	sleep   SleepFunc
	logger  *slog.Logger
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithSleep replaces the sleep used for backoff and 429 waits.
func WithSleep(fn SleepFunc) Option {
	return func(r *Resolver) {
		r.sleep = fn
	}
}

// New creates a resolver. limiter must be the process-wide search limiter.
func New(api API, limiter Limiter, cfg Config, logger *slog.Logger, opts ...Option) *Resolver {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		api:     api,
		limiter: limiter,
		cfg:     cfg,
		sleep:   sleepCtx,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search returns the candidates whose symbol matches symbol exactly (ignoring
// case) and that are deployed on chain, in search order. Per-candidate
// failures drop that candidate only. An empty result is not an error.
func (r *Resolver) Search(ctx context.Context, symbol string, chain domain.Chain) ([]domain.SearchCandidate, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, &domain.ValidationError{Field: "symbol", Msg: "token symbol cannot be empty"}
	}

	coins, err := r.search(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("resolver: search %q: %w", symbol, err)
	}

	candidates := ExactMatches(coins, symbol)
	r.logger.Info("search candidates", "symbol", symbol, "chain", chain, "hits", len(coins), "exact", len(candidates))

	resolved := make([]*domain.SearchCandidate, len(candidates))
	for start := 0; start < len(candidates); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(candidates))

		var g errgroup.Group
		g.SetLimit(r.cfg.BatchSize)
		for i := start; i < end; i++ {
			g.Go(func() error {
				c, err := r.resolve(ctx, candidates[i], chain)
				switch {
				case err == nil:
					metrics.ResolverCandidatesTotal.WithLabelValues("resolved").Inc()
					resolved[i] = c
				case ctx.Err() != nil:
					return ctx.Err()
				case errors.Is(err, domain.ErrChainNotSupported):
					metrics.ResolverCandidatesTotal.WithLabelValues("chain_missing").Inc()
					r.logger.Debug("candidate not on chain", "id", candidates[i].ExternalID, "chain", chain)
				default:
					metrics.ResolverCandidatesTotal.WithLabelValues("failed").Inc()
					r.logger.Warn("candidate resolution failed", "id", candidates[i].ExternalID, "err", err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([]domain.SearchCandidate, 0, len(candidates))
	for _, c := range resolved {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

// ExactMatches keeps the coins whose symbol equals symbol, ignoring case.
func ExactMatches(coins []coingecko.SearchCoin, symbol string) []domain.SearchCandidate {
	var out []domain.SearchCandidate
	for _, c := range coins {
		if !strings.EqualFold(c.Symbol, symbol) {
			continue
		}
		out = append(out, domain.SearchCandidate{
			ExternalID: c.ID,
			Symbol:     c.Symbol,
			Name:       c.Name,
		})
	}
	return out
}

// search runs the symbol query. 429 answers are waited out like candidate
// lookups; once MaxRateLimitWaits is spent the throttle surfaces as an
// UpstreamError, since RetryAfterError never leaves the resolver.
func (r *Resolver) search(ctx context.Context, symbol string) ([]coingecko.SearchCoin, error) {
	for waits := 0; ; waits++ {
		if err := r.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		coins, err := r.api.Search(ctx, symbol)
		var rl *domain.RetryAfterError
		if err == nil || ctx.Err() != nil || !errors.As(err, &rl) {
			return coins, err
		}
		if waits >= r.cfg.MaxRateLimitWaits {
			return nil, &domain.UpstreamError{Service: rl.Service, StatusCode: http.StatusTooManyRequests}
		}
		wait := rl.Wait
		if wait <= 0 {
			wait = r.cfg.DefaultRetryAfter
		}
		r.logger.Warn("search rate limited, waiting", "symbol", symbol, "wait", wait)
		if err := r.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// resolve fetches the coin detail for one candidate. 429 answers are waited
// out without touching the retry budget.
func (r *Resolver) resolve(ctx context.Context, cand domain.SearchCandidate, chain domain.Chain) (*domain.SearchCandidate, error) {
	attempts, waits := 0, 0
	for {
		if err := r.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		detail, err := r.api.Coin(ctx, cand.ExternalID)
		if err == nil {
			addr := detail.Address(chain.Platform())
			if addr == "" {
				return nil, fmt.Errorf("resolver: %s on %s: %w", cand.ExternalID, chain, domain.ErrChainNotSupported)
			}
			cand.Chain = chain
			cand.ContractAddress = addr
			return &cand, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var rl *domain.RetryAfterError
		if errors.As(err, &rl) {
			waits++
			if waits > r.cfg.MaxRateLimitWaits {
				return nil, fmt.Errorf("resolver: %s: gave up after %d rate limit waits: %w", cand.ExternalID, waits-1, err)
			}
			wait := rl.Wait
			if wait <= 0 {
				wait = r.cfg.DefaultRetryAfter
			}
			r.logger.Warn("rate limited, waiting", "id", cand.ExternalID, "wait", wait)
			if err := r.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		waits = 0
		attempts++
		if attempts >= r.cfg.MaxAttempts {
			return nil, fmt.Errorf("resolver: %s: %d attempts: %w", cand.ExternalID, attempts, err)
		}
		backoff := r.cfg.BaseBackoff << (attempts - 1)
		r.logger.Debug("retrying coin detail", "id", cand.ExternalID, "attempt", attempts, "backoff", backoff, "err", err)
		if err := r.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
