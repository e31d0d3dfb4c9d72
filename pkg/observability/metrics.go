package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Token verification metrics
	TokenVerificationsTotal   *prometheus.CounterVec
	TokenVerificationDuration prometheus.Histogram
	TokenCacheHitsTotal       prometheus.Counter
	TokenCacheMissesTotal     prometheus.Counter
	TokenCacheEvictionsTotal  prometheus.Counter
	TokenCacheSize            prometheus.Gauge

	// Auth flow metrics
	LoginAttemptsTotal    *prometheus.CounterVec
	RegistrationsTotal    *prometheus.CounterVec
	RateLimitRejectsTotal *prometheus.CounterVec
	BruteForceAlertsTotal prometheus.Counter

	// Identity provider metrics
	IdPRequestsTotal   *prometheus.CounterVec
	IdPRequestDuration *prometheus.HistogramVec

	// Audit metrics
	AuditEventsTotal *prometheus.CounterVec

	// Vendor workflow metrics
	VendorRequestsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecommerce_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecommerce_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecommerce_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		TokenVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecommerce_token_verifications_total",
				Help: "Total number of bearer token verifications",
			},
			[]string{"result"},
		),
		TokenVerificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ecommerce_token_verification_duration_seconds",
				Help:    "Token verification duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		TokenCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ecommerce_token_cache_hits_total",
				Help: "Total number of token cache hits",
			},
		),
		TokenCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ecommerce_token_cache_misses_total",
				Help: "Total number of token cache misses",
			},
		),
		TokenCacheEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ecommerce_token_cache_evictions_total",
				Help: "Total number of token cache evictions",
			},
		),
		TokenCacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ecommerce_token_cache_entries",
				Help: "Current number of cached token entries",
			},
		),

		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecommerce_login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"outcome"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecommerce_registrations_total",
				Help: "Total number of registration attempts",
			},
			[]string{"outcome"},
		),
		RateLimitRejectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecommerce_rate_limit_rejects_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"limiter"},
		),
		BruteForceAlertsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ecommerce_brute_force_alerts_total",
				Help: "Total number of brute force alerts raised",
			},
		),

		IdPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecommerce_idp_requests_total",
				Help: "Total number of identity provider requests",
			},
			[]string{"operation", "status"},
		),
		IdPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecommerce_idp_request_duration_seconds",
				Help:    "Identity provider request duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
			[]string{"operation"},
		),

		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecommerce_audit_events_total",
				Help: "Total number of audit events recorded",
			},
			[]string{"severity"},
		),

		VendorRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecommerce_vendor_requests_total",
				Help: "Total number of vendor workflow actions",
			},
			[]string{"action"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ecommerce_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ecommerce_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.TokenVerificationsTotal,
		m.TokenVerificationDuration,
		m.TokenCacheHitsTotal,
		m.TokenCacheMissesTotal,
		m.TokenCacheEvictionsTotal,
		m.TokenCacheSize,
		m.LoginAttemptsTotal,
		m.RegistrationsTotal,
		m.RateLimitRejectsTotal,
		m.BruteForceAlertsTotal,
		m.IdPRequestsTotal,
		m.IdPRequestDuration,
		m.AuditEventsTotal,
		m.VendorRequestsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// MetricsHandler returns the handler serving the /metrics endpoint
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
