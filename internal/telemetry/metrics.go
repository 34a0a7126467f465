// Package telemetry holds the Prometheus collectors shared by every Pinpoint
// component and the HTTP middleware that records request metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts handled requests by route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinpoint_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes request latency by route.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pinpoint_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	// ProviderCalls counts outbound provider calls by provider and outcome
	// (success, timeout, failure, circuit_open).
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinpoint_provider_calls_total",
			Help: "Outbound provider calls by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderRetries counts the single timeout retry.
	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinpoint_provider_retries_total",
			Help: "Timeout retries issued per provider",
		},
		[]string{"provider"},
	)

	// CacheLookups counts cache lookups by tier (local, remote) and result (hit, miss, expired, error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinpoint_cache_lookups_total",
			Help: "Cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	// RateLimited counts requests rejected by the per-client limiter.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pinpoint_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
	)

	// IdempotentReplays counts responses served from the idempotency store.
	IdempotentReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pinpoint_idempotent_replays_total",
			Help: "Responses replayed from the idempotency store",
		},
	)

	// EnrichDuration observes full enrichment runs (cache misses only).
	EnrichDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pinpoint_enrich_duration_seconds",
			Help:    "Duration of uncached enrichment runs",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 16, 32},
		},
	)

	// ImagesHosted counts re-hosted images by source.
	ImagesHosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinpoint_images_hosted_total",
			Help: "Images downloaded and re-hosted by source",
		},
		[]string{"source"},
	)
)

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency. route should be a stable
// label (the registered pattern), never the raw path, to keep cardinality low.
func Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
