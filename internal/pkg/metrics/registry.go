package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database/Repository Metrics
var (
	// DBOperations tracks total database operations
	DBOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ara_db_operations_total",
			Help: "Total database operations by repository, operation, and status",
		},
		[]string{"repo", "operation", "status"},
	)

	// DBDuration tracks database operation latency
	DBDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "ara_db_operation_duration_ms",
			Help:                            "Database operation duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBRowsAffected tracks rows affected by write operations
	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "ara_db_rows_affected",
			Help:                            "Number of rows affected by database write operations",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBErrors tracks database errors by type
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ara_db_errors_total",
			Help: "Total database errors by repository, operation, and error type",
		},
		[]string{"repo", "operation", "error_type"},
	)
)

// Authentication Metrics
var (
	// Logins tracks login attempts by provider and outcome
	// (success, fetch_failed, mapping_failed, persistence_failed).
	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ara_logins_total",
			Help: "Total OAuth2/OIDC logins by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// LoginDuration tracks the time spent in the login pipeline after the code exchange
	LoginDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "ara_login_duration_ms",
			Help:                            "Login pipeline duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"provider"},
	)

	// StrategyFallbacks counts provider names that resolved to the generic
	// strategy without any registry entry.
	StrategyFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ara_strategy_fallbacks_total",
			Help: "Provider names resolved to the generic account strategy without configuration",
		},
		[]string{"provider"},
	)

	// CacheHits tracks discovery/JWKS cache hits
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ara_cache_hits_total",
			Help: "Total cache hits by cache name",
		},
		[]string{"cache_name"},
	)

	// CacheMisses tracks discovery/JWKS cache misses
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ara_cache_misses_total",
			Help: "Total cache misses by cache name",
		},
		[]string{"cache_name"},
	)
)

// HTTP Handler Metrics
var (
	// HTTPRequests tracks HTTP requests
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ara_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration tracks HTTP request duration
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "ara_http_request_duration_ms",
			Help:                            "HTTP request duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"method", "route"},
	)

	// HTTPActiveRequests tracks active HTTP requests
	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ara_http_active_requests",
			Help: "Number of active HTTP requests",
		},
	)
)

// Identity Provider Metrics
var (
	// IdPRequests tracks outbound calls to identity providers
	IdPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ara_idp_requests_total",
			Help: "Total identity provider HTTP calls by host, method, route, and status",
		},
		[]string{"host", "method", "route", "status"},
	)

	// IdPDuration tracks identity provider call latency
	IdPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "ara_idp_request_duration_ms",
			Help:                            "Identity provider HTTP call duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"host", "route"},
	)

	// IdPErrors tracks failed identity provider calls by error type
	IdPErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ara_idp_errors_total",
			Help: "Total identity provider call failures by host, route, and error type",
		},
		[]string{"host", "route", "error_type"},
	)

	// IdPRateLimitRemaining tracks X-RateLimit-Remaining as reported by the provider
	IdPRateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ara_idp_ratelimit_remaining",
			Help: "Requests remaining in the provider rate limit window",
		},
		[]string{"host"},
	)

	// IdPRateLimitLimit tracks X-RateLimit-Limit as reported by the provider
	IdPRateLimitLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ara_idp_ratelimit_limit",
			Help: "Size of the provider rate limit window",
		},
		[]string{"host"},
	)

	// IdPRateLimitReset tracks X-RateLimit-Reset (unix seconds)
	IdPRateLimitReset = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ara_idp_ratelimit_reset_seconds",
			Help: "Unix time at which the provider rate limit window resets",
		},
		[]string{"host"},
	)
)
