package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// providerMetricsTransport wraps an http.RoundTripper to collect metrics on identity provider calls
type providerMetricsTransport struct {
	provider string
	base     http.RoundTripper
}

// NewProviderTransport creates a transport wrapper that collects metrics for
// every call made to the identity provider. It should be installed on the
// HTTP client used for discovery, code exchange and userinfo.
func NewProviderTransport(provider string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &providerMetricsTransport{provider: provider, base: base}
}

// RoundTrip implements http.RoundTripper, wrapping the base transport with metrics collection
func (t *providerMetricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	endpoint := providerEndpoint(req.URL.Path)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	ProviderCalls.WithLabelValues(t.provider, endpoint, strconv.Itoa(statusCode)).Inc()
	ProviderCallDuration.WithLabelValues(t.provider, endpoint).Observe(float64(duration.Milliseconds()))

	if err != nil || statusCode >= 400 {
		ProviderErrors.WithLabelValues(t.provider, endpoint, classifyProviderError(statusCode, err)).Inc()
	}

	return resp, err
}

// providerEndpoint maps a provider URL path to a bounded endpoint label.
// Google serves these under versioned paths such as /token and /v1/userinfo.
func providerEndpoint(path string) string {
	path = strings.ToLower(path)
	switch {
	case strings.HasSuffix(path, "/.well-known/openid-configuration"):
		return "discovery"
	case strings.Contains(path, "token"):
		return "token"
	case strings.Contains(path, "userinfo"):
		return "userinfo"
	case strings.Contains(path, "certs"), strings.Contains(path, "keys"), strings.Contains(path, "jwks"):
		return "jwks"
	default:
		return "other"
	}
}

// classifyProviderError categorizes provider call failures for metrics
func classifyProviderError(statusCode int, err error) string {
	if err != nil {
		var netErr net.Error
		switch {
		case errors.Is(err, context.Canceled):
			return "canceled"
		case errors.Is(err, context.DeadlineExceeded):
			return "timeout"
		case errors.As(err, &netErr) && netErr.Timeout():
			return "timeout"
		default:
			return "network"
		}
	}

	// HTTP status code errors
	switch {
	case statusCode == 400:
		return "bad_request"
	case statusCode == 401:
		return "unauthorized"
	case statusCode == 403:
		return "forbidden"
	case statusCode == 404:
		return "not_found"
	case statusCode == 429:
		return "rate_limited"
	case statusCode >= 500:
		return "server_error"
	case statusCode >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
