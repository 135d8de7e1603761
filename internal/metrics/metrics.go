package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bubblescope_upstream_requests_total",
			Help: "Total number of requests sent to upstream APIs",
		},
		[]string{"service", "endpoint", "status"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bubblescope_upstream_duration_seconds",
			Help:    "Duration of upstream API requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"service", "endpoint"},
	)

	UpstreamBlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bubblescope_upstream_blocked_total",
			Help: "Upstream answers served by a bot-protection front end",
		},
		[]string{"service", "source"},
	)

	RateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bubblescope_ratelimit_wait_seconds",
			Help:    "Time callers spent suspended by the search API limiter",
			Buckets: []float64{0.1, 1, 5, 10, 30, 60},
		},
	)

	ResolverCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bubblescope_resolver_candidates_total",
			Help: "Search candidates by resolution outcome",
		},
		[]string{"outcome"},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bubblescope_pipeline_runs_total",
			Help: "Pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	StageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bubblescope_stage_failures_total",
			Help: "Pipeline stage failures",
		},
		[]string{"stage"},
	)
)

// RecordUpstream records one upstream request. status is the HTTP status
// code, or 0 when the request failed before a response arrived.
func RecordUpstream(service, endpoint string, status int, d time.Duration) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	UpstreamRequestsTotal.WithLabelValues(service, endpoint, statusStr).Inc()
	UpstreamDuration.WithLabelValues(service, endpoint).Observe(d.Seconds())
}

// RecordRateLimitWait observes one limiter suspension.
func RecordRateLimitWait(d time.Duration) {
	RateLimitWaitSeconds.Observe(d.Seconds())
}

// Route mounts an extra handler on the metrics server.
type Route struct {
	Pattern string
	Handler http.Handler
}

// Server encapsulates the HTTP server exposing /metrics and any extra routes.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics plus routes.
func Start(port int, logger *slog.Logger, routes ...Route) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
