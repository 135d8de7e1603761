package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/FranksOps/bubblescope/internal/bubblemaps"
	"github.com/FranksOps/bubblescope/internal/browser"
	"github.com/FranksOps/bubblescope/internal/coingecko"
	"github.com/FranksOps/bubblescope/internal/config"
	"github.com/FranksOps/bubblescope/internal/enrich"
	"github.com/FranksOps/bubblescope/internal/fingerprint"
	"github.com/FranksOps/bubblescope/internal/metrics"
	"github.com/FranksOps/bubblescope/internal/pipeline"
	"github.com/FranksOps/bubblescope/internal/render"
	"github.com/FranksOps/bubblescope/internal/resolver"
	"github.com/FranksOps/bubblescope/internal/session"
	"github.com/FranksOps/bubblescope/internal/storage"
	"github.com/FranksOps/bubblescope/internal/storage/fsstore"
	"github.com/FranksOps/bubblescope/internal/storage/postgres"
	"github.com/FranksOps/bubblescope/internal/storage/s3store"
	"github.com/FranksOps/bubblescope/internal/storage/sqlite"
	"github.com/FranksOps/bubblescope/pkg/httpclient"
	"github.com/FranksOps/bubblescope/pkg/ratelimit"
)

// app builds the object graph lazily so each command only opens what it
// uses. It is not safe for concurrent construction.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer

	limiter *ratelimit.Limiter
	gecko   *coingecko.Client
	maps    *bubblemaps.Client
	store   storage.Backend

	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// sharedLimiter is the single CoinGecko quota for the whole process.
func (a *app) sharedLimiter() *ratelimit.Limiter {
	if a.limiter == nil {
		a.limiter = ratelimit.NewLimiter(a.cfg.RateLimit.Limit, a.cfg.RateLimit.Window,
			ratelimit.WithWaitHook(func(d time.Duration) {
				metrics.RecordRateLimitWait(d)
				a.logger.Debug("rate limit wait", "wait", d)
			}),
		)
	}
	return a.limiter
}

func (a *app) clients() (*coingecko.Client, *bubblemaps.Client, error) {
	if a.gecko != nil {
		return a.gecko, a.maps, nil
	}

	profile, err := fingerprint.ParseProfile(a.cfg.HTTP.Fingerprint)
	if err != nil {
		return nil, nil, err
	}
	transport, err := fingerprint.Transport(profile, nil)
	if err != nil {
		return nil, nil, err
	}

	hc := httpclient.New(httpclient.Config{
		Timeout:   a.cfg.HTTP.Timeout,
		Headers:   map[string]string{"User-Agent": a.cfg.HTTP.UserAgent},
		Transport: transport,
	})

	a.gecko = coingecko.NewClient(hc, coingecko.Config{
		SearchURL: a.cfg.CoinGecko.SearchURL,
		BaseURL:   a.cfg.CoinGecko.BaseURL,
		APIKey:    a.cfg.CoinGecko.APIKey,
	})
	a.maps = bubblemaps.NewClient(hc, a.cfg.Bubblemaps.BaseURL)
	return a.gecko, a.maps, nil
}

func (a *app) resolver() (*resolver.Resolver, error) {
	gecko, _, err := a.clients()
	if err != nil {
		return nil, err
	}
	rc := a.cfg.Resolver
	return resolver.New(gecko, a.sharedLimiter(), resolver.Config{
		BatchSize:         rc.BatchSize,
		MaxAttempts:       rc.MaxAttempts,
		BaseBackoff:       rc.BaseBackoff,
		DefaultRetryAfter: rc.DefaultRetryAfter,
		MaxRateLimitWaits: rc.MaxRateLimitWaits,
	}, a.logger.With("component", "resolver")), nil
}

func (a *app) storage(ctx context.Context) (storage.Backend, error) {
	if a.store != nil {
		return a.store, nil
	}

	sc := a.cfg.Storage
	var (
		b   storage.Backend
		err error
	)
	switch sc.Backend {
	case config.StorageS3:
		b, err = s3store.New(s3store.Config{
			Endpoint:      sc.S3.Endpoint,
			Bucket:        sc.S3.Bucket,
			AccessKey:     sc.S3.AccessKey,
			SecretKey:     sc.S3.SecretKey,
			Region:        sc.S3.Region,
			PublicBaseURL: sc.PublicBaseURL,
		}, a.logger.With("component", "storage"))
	case config.StorageSQLite:
		b, err = sqlite.New(sc.SQLite.Path, sc.PublicBaseURL)
	case config.StoragePostgres:
		b, err = postgres.New(ctx, sc.Postgres.DSN, sc.PublicBaseURL)
	case config.StorageFS:
		b, err = fsstore.New(sc.FS.Root, sc.PublicBaseURL)
	default:
		err = fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
	if err != nil {
		return nil, err
	}

	a.store = b
	a.onClose(b.Close)
	return b, nil
}

func (a *app) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	gecko, maps, err := a.clients()
	if err != nil {
		return nil, err
	}
	store, err := a.storage(ctx)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(a.cfg.Pipeline.TemplateDir)
	if err != nil {
		return nil, err
	}

	bc := a.cfg.Browser
	noise := bc.Noise
	if len(noise) == 0 {
		noise = render.NoiseSelectors
	}
	capturer := browser.New(browser.Config{
		ExecPath:   bc.ExecPath,
		NoSandbox:  bc.NoSandbox,
		Width:      bc.Width,
		Height:     bc.Height,
		Scale:      bc.Scale,
		NavTimeout: bc.NavTimeout,
		Noise:      noise,
	}, a.logger.With("component", "browser"))
	a.onClose(capturer.Close)

	fetcher := enrich.NewFetcher(gecko, maps, a.sharedLimiter(), a.logger.With("component", "enrich"))
	return pipeline.New(fetcher, renderer, capturer, store, nil, pipeline.Config{
		GraphSettle: a.cfg.Pipeline.GraphSettle,
		CardSettle:  a.cfg.Pipeline.CardSettle,
		Noise:       noise,
	}, a.logger.With("component", "pipeline")), nil
}

func (a *app) sessions(ctx context.Context) (session.Store, error) {
	sc := a.cfg.Session
	var (
		s   session.Store
		err error
	)
	switch sc.Backend {
	case config.SessionRedis:
		s, err = session.NewRedis(ctx, sc.RedisURL, sc.TTL)
	default:
		s = session.NewMemory(sc.TTL, sc.Size)
	}
	if err != nil {
		return nil, err
	}
	a.onClose(s.Close)
	return s, nil
}
