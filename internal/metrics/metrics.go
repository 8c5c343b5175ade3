package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Third-party API calls
	ProviderCallsTotal       *prometheus.CounterVec
	ProviderCallDuration     *prometheus.HistogramVec
	ProviderCircuitOpenTotal *prometheus.CounterVec

	// Publishing
	PublishDeliveriesTotal *prometheus.CounterVec

	// Token refreshes
	TokenRefreshTotal *prometheus.CounterVec

	// Memoized API wrapper
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// Open Graph rendering
	OGRenderDuration *prometheus.HistogramVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "route", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
				},
				[]string{"method", "route", "status"},
			),
			HTTPResponseSize: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "route"},
			),

			ProviderCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_calls_total",
					Help: "Total number of third-party API calls",
				},
				[]string{"provider", "operation", "outcome"},
			),
			ProviderCallDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "provider_call_duration_seconds",
					Help:    "Third-party API call latency in seconds",
					Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
				},
				[]string{"provider", "operation"},
			),
			ProviderCircuitOpenTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_circuit_open_total",
					Help: "Number of times a provider circuit breaker opened",
				},
				[]string{"provider"},
			),

			PublishDeliveriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "publish_deliveries_total",
					Help: "Post deliveries by platform and status",
				},
				[]string{"platform", "status"},
			),

			TokenRefreshTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "oauth_token_refresh_total",
					Help: "OAuth token refreshes by provider and outcome",
				},
				[]string{"provider", "outcome"},
			),

			CacheHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of memoized API cache hits",
				},
				[]string{"cache_name"},
			),
			CacheMissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of memoized API cache misses",
				},
				[]string{"cache_name"},
			),

			RateLimitExceededTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit violations",
				},
				[]string{"route"},
			),

			OGRenderDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "og_render_duration_seconds",
					Help:    "Open Graph image render time in seconds",
					Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
				},
				[]string{"source"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}
