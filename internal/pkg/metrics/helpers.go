package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RecordHTTPRequest records HTTP request metrics consistently
// route: the matched route template, not the raw path, to bound cardinality
func RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(float64(duration.Milliseconds()))
}

// RecordCallback records the outcome of a provider callback.
// outcome is "success" or a stable error code.
func RecordCallback(provider, outcome string, exchange time.Duration) {
	LoginCallbacks.WithLabelValues(provider, outcome).Inc()
	if exchange > 0 {
		ProviderExchangeDuration.WithLabelValues(provider).Observe(float64(exchange.Milliseconds()))
	}
}

// RecordVerification records a bearer verification; an empty code means success
func RecordVerification(code string) {
	if code == "" {
		code = "ok"
	}
	CredentialVerifications.WithLabelValues(code).Inc()
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
