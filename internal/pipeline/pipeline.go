// Package pipeline drives one token request from market lookup through
// rendering, capture and upload. Only missing market data aborts a run;
// every later stage degrades the result instead.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/metrics"
	"github.com/FranksOps/bubblescope/internal/render"
)

// Object folders.
const (
	FolderGraphPage    = "bubble-map-pages"
	FolderGraphImage   = "bubble-map-image"
	FolderSummaryPage  = "bubble-map-screenshot"
	FolderSummaryImage = "bubble-map-screenshots"
)

// Enricher fetches the data a run is built from.
type Enricher interface {
	FetchMarketData(ctx context.Context, address string, chain domain.Chain) (*domain.TokenMarketData, error)
	FetchDecentralization(ctx context.Context, address string, chain domain.Chain) (*domain.DecentralizationMetrics, error)
	FetchGraph(ctx context.Context, address string, chain domain.Chain) (domain.BubbleGraphDataset, error)
}

// Renderer produces the HTML pages.
type Renderer interface {
	RenderGraphPage(dataset domain.BubbleGraphDataset) ([]byte, error)
	RenderSummaryCard(md *domain.TokenMarketData, m *domain.DecentralizationMetrics) ([]byte, error)
}

// Capturer screenshots a published page.
type Capturer interface {
	Capture(ctx context.Context, url, selector string, settle time.Duration) ([]byte, error)
}

// Uploader publishes an artifact and returns its public URL.
type Uploader interface {
	Put(ctx context.Context, data []byte, objectName, folder string) (string, error)
}

// ReduceFunc shrinks a screenshot for delivery. The upload extension
// follows the encoding it returns.
type ReduceFunc func([]byte) ([]byte, error)

// Config tunes the capture stages.
type Config struct {
	// GraphSettle gives the graph simulation time to lay out (default 15s).
	GraphSettle time.Duration
	// CardSettle is the wait before capturing the summary card.
	CardSettle time.Duration
	// Noise lists selectors stripped from the graph page before it is
	// published (default render.NoiseSelectors).
	Noise []string
}

var errGraphUnavailable = errors.New("graph data unavailable")

// Pipeline runs requests. It holds no per-request state and is safe for
// concurrent use.
type Pipeline struct {
	enricher Enricher
	renderer Renderer
	capturer Capturer
	uploader Uploader
	reduce   ReduceFunc
	cfg      Config
	logger   *slog.Logger
}

// New wires a pipeline. A nil reduce uses render.Reduce.
func New(e Enricher, r Renderer, c Capturer, u Uploader, reduce ReduceFunc, cfg Config, logger *slog.Logger) *Pipeline {
	if reduce == nil {
		reduce = render.Reduce
	}
	if cfg.GraphSettle <= 0 {
		cfg.GraphSettle = 15 * time.Second
	}
	if len(cfg.Noise) == 0 {
		cfg.Noise = render.NoiseSelectors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		enricher: e,
		renderer: r,
		capturer: c,
		uploader: u,
		reduce:   reduce,
		cfg:      cfg,
		logger:   logger,
	}
}

// run tracks the stage failures of one request.
type run struct {
	logger   *slog.Logger
	failures []domain.StageFailure
}

func (r *run) fail(stage domain.Stage, err error) {
	r.logger.Warn("stage failed", "stage", stage, "err", err)
	metrics.StageFailuresTotal.WithLabelValues(string(stage)).Inc()
	r.failures = append(r.failures, domain.StageFailure{Stage: stage, Error: err.Error()})
}

// Run produces the full answer for a token. The returned error is non-nil
// only when the result is FAILED, and then wraps domain.ErrNoListing or the
// market lookup failure.
func (p *Pipeline) Run(ctx context.Context, address string, chain domain.Chain) (*domain.PipelineResult, error) {
	logger := p.logger.With("chain", chain, "address", address)
	start := time.Now()
	logger.Info("pipeline started")

	md, err := p.enricher.FetchMarketData(ctx, address, chain)
	if err == nil && md == nil {
		err = domain.ErrNoListing
	}
	if err != nil {
		metrics.StageFailuresTotal.WithLabelValues(string(domain.StageFetchMarket)).Inc()
		metrics.PipelineRunsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
		logger.Warn("pipeline failed", "stage", domain.StageFetchMarket, "err", err)
		return &domain.PipelineResult{
			Status:   domain.StatusFailed,
			Chain:    chain,
			Address:  address,
			Failures: []domain.StageFailure{{Stage: domain.StageFetchMarket, Error: err.Error()}},
		}, fmt.Errorf("pipeline: %s/%s: %w", chain, address, err)
	}

	rs := &run{logger: logger}

	m, err := p.enricher.FetchDecentralization(ctx, address, chain)
	if err != nil {
		rs.fail(domain.StageFetchMetrics, err)
		m = nil
	}

	graph, err := p.graph(ctx, rs, address, chain, true)
	if err == nil {
		md.BubbleScreenshotURL = graph.ScreenshotURL
	}

	res := &domain.PipelineResult{
		Chain:        chain,
		Address:      address,
		TokenData:    md,
		Metrics:      m,
		GraphPageURL: graph.PageURL,
	}
	res.ScreenshotURL = p.summary(ctx, rs, md, m, address, chain)

	res.Failures = rs.failures
	res.Status = domain.StatusSuccess
	if len(rs.failures) > 0 {
		res.Status = domain.StatusPartial
	}
	metrics.PipelineRunsTotal.WithLabelValues(string(res.Status)).Inc()
	logger.Info("pipeline finished", "status", res.Status, "failures", len(rs.failures), "duration", time.Since(start))
	return res, nil
}

// RunGraph publishes only the holder graph. Unlike Run, a token without a
// graph is an error.
func (p *Pipeline) RunGraph(ctx context.Context, address string, chain domain.Chain) (*domain.GraphResult, error) {
	logger := p.logger.With("chain", chain, "address", address)
	rs := &run{logger: logger}

	graph, err := p.graph(ctx, rs, address, chain, false)
	if graph.PageURL == "" {
		metrics.PipelineRunsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
		return nil, fmt.Errorf("pipeline: graph %s/%s: %w", chain, address, err)
	}

	// A published page without an image is still worth a reply.
	status := domain.StatusSuccess
	if err != nil {
		status = domain.StatusPartial
	}
	metrics.PipelineRunsTotal.WithLabelValues(string(status)).Inc()
	logger.Info("graph published", "status", status, "page", graph.PageURL)
	return graph, nil
}

// graph runs the holder graph stages. With lenient set a missing or failed
// dataset renders an empty graph and is recorded as a fetch failure;
// otherwise it aborts. A nil error means the
// image was published; PageURL may be set either way.
func (p *Pipeline) graph(ctx context.Context, rs *run, address string, chain domain.Chain, lenient bool) (*domain.GraphResult, error) {
	out := &domain.GraphResult{Chain: chain, Address: address}

	dataset, err := p.enricher.FetchGraph(ctx, address, chain)
	switch {
	case err != nil && !lenient:
		return out, err
	case err != nil:
		rs.fail(domain.StageFetchGraph, err)
		dataset = nil
	case dataset == nil && !lenient:
		return out, domain.ErrNoListing
	case dataset == nil:
		rs.fail(domain.StageFetchGraph, errGraphUnavailable)
	}

	name := objectName(chain, address)

	page, err := p.renderer.RenderGraphPage(dataset)
	if err != nil {
		rs.fail(domain.StageRenderGraphPage, err)
		return out, err
	}
	if stripped, err := render.StripNoise(page, p.cfg.Noise); err != nil {
		rs.logger.Warn("noise strip failed, publishing page as rendered", "err", err)
	} else {
		page = stripped
	}

	pageURL, err := p.uploader.Put(ctx, page, name+".html", FolderGraphPage)
	if err != nil {
		rs.fail(domain.StageUploadGraphPage, err)
		return out, err
	}
	out.PageURL = pageURL

	shot, err := p.capturer.Capture(ctx, out.PageURL, "", p.cfg.GraphSettle)
	if err == nil {
		shot, err = p.reduce(shot)
	}
	if err != nil {
		rs.fail(domain.StageScreenshotGraph, err)
		return out, err
	}

	out.ScreenshotURL, err = p.uploader.Put(ctx, shot, name+render.Ext(shot), FolderGraphImage)
	if err != nil {
		rs.fail(domain.StageUploadGraphImage, err)
		return out, err
	}
	return out, nil
}

// summary renders, publishes and captures the summary card. It returns the
// card image URL, or "" when any step failed.
func (p *Pipeline) summary(ctx context.Context, rs *run, md *domain.TokenMarketData, m *domain.DecentralizationMetrics, address string, chain domain.Chain) string {
	name := objectName(chain, address)

	page, err := p.renderer.RenderSummaryCard(md, m)
	if err != nil {
		rs.fail(domain.StageRenderSummaryCard, err)
		return ""
	}

	selector := render.CardSelector
	if ok, err := render.HasSelector(page, selector); err != nil || !ok {
		selector = ""
	}

	pageURL, err := p.uploader.Put(ctx, page, name+".html", FolderSummaryPage)
	if err != nil {
		rs.fail(domain.StageUploadSummaryPage, err)
		return ""
	}

	shot, err := p.capturer.Capture(ctx, pageURL, selector, p.cfg.CardSettle)
	if err == nil {
		shot, err = p.reduce(shot)
	}
	if err != nil {
		rs.fail(domain.StageScreenshotSummary, err)
		return ""
	}

	url, err := p.uploader.Put(ctx, shot, name+render.Ext(shot), FolderSummaryImage)
	if err != nil {
		rs.fail(domain.StageUploadSummaryImage, err)
		return ""
	}
	return url
}

func objectName(chain domain.Chain, address string) string {
	return fmt.Sprintf("%s-%s", chain, address)
}
