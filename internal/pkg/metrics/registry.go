package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login Flow Metrics
var (
	// LoginRedirects tracks redirects to the identity provider
	LoginRedirects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_login_redirects_total",
			Help: "Total redirects to the identity provider by provider",
		},
		[]string{"provider"},
	)

	// LoginCallbacks tracks provider callbacks by outcome
	LoginCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_login_callbacks_total",
			Help: "Total provider callbacks by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderExchangeDuration tracks the code exchange and profile fetch latency
	ProviderExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "tokengate_provider_exchange_duration_ms",
			Help:                            "Identity provider exchange duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"provider"},
	)

	// Logouts tracks credential cookie removals
	Logouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokengate_logouts_total",
			Help: "Total logouts",
		},
	)
)

// Credential Metrics
var (
	// CredentialsIssued tracks minted credentials
	CredentialsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokengate_credentials_issued_total",
			Help: "Total credentials issued",
		},
	)

	// CredentialVerifications tracks bearer verifications by result code
	CredentialVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_credential_verifications_total",
			Help: "Total bearer credential verifications by result",
		},
		[]string{"result"},
	)
)

// HTTP Metrics
var (
	// HTTPRequests tracks HTTP requests
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_http_requests_total",
			Help: "Total HTTP requests by method, route, and status code",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPDuration tracks HTTP request duration
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "tokengate_http_request_duration_ms",
			Help:                            "HTTP request duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"method", "route"},
	)
)

// Identity Provider HTTP Metrics
var (
	// ProviderCalls tracks outbound calls to the identity provider
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_provider_calls_total",
			Help: "Total identity provider HTTP calls by provider, endpoint, and status code",
		},
		[]string{"provider", "endpoint", "status_code"},
	)

	// ProviderCallDuration tracks identity provider HTTP call latency
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "tokengate_provider_call_duration_ms",
			Help:                            "Identity provider HTTP call duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"provider", "endpoint"},
	)

	// ProviderErrors tracks failed identity provider HTTP calls
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_provider_errors_total",
			Help: "Total identity provider HTTP errors by provider, endpoint, and error type",
		},
		[]string{"provider", "endpoint", "error_type"},
	)
)
