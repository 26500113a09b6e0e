package metrics

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// idpMetricsTransport wraps an http.RoundTripper to collect metrics on
// identity provider calls (token exchange, userinfo, discovery, JWKS)
type idpMetricsTransport struct {
	base http.RoundTripper
}

// NewIdPTransport creates a transport wrapper that records every outbound
// identity provider call. Install it on the HTTP client shared by the OAuth2
// clients.
func NewIdPTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &idpMetricsTransport{base: base}
}

// RoundTrip implements http.RoundTripper
func (t *idpMetricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	host := req.URL.Hostname()
	route := normalizeIdPRoute(req.URL.Path)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
		trackRateLimitHeaders(resp, host)
	}

	IdPRequests.WithLabelValues(host, req.Method, route, strconv.Itoa(statusCode)).Inc()
	IdPDuration.WithLabelValues(host, route).Observe(float64(duration.Milliseconds()))

	if err != nil || statusCode >= 400 {
		IdPErrors.WithLabelValues(host, route, classifyIdPError(statusCode, err)).Inc()
	}

	return resp, err
}

// trackRateLimitHeaders records GitHub-style X-RateLimit-* headers when present
func trackRateLimitHeaders(resp *http.Response, host string) {
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if r, err := strconv.Atoi(remaining); err == nil {
			IdPRateLimitRemaining.WithLabelValues(host).Set(float64(r))
		}
	}

	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			IdPRateLimitLimit.WithLabelValues(host).Set(float64(l))
		}
	}

	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if r, err := strconv.ParseFloat(reset, 64); err == nil {
			IdPRateLimitReset.WithLabelValues(host).Set(r)
		}
	}
}

var idpRoutePatterns = []struct {
	regex   *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`/users/[^/]+`), "/users/:id"},
	{regexp.MustCompile(`/user/\d+`), "/user/:id"},
	{regexp.MustCompile(`/realms/[^/]+`), "/realms/:realm"},
	{regexp.MustCompile(`/v\d+(\.\d+)?/`), "/:version/"},
}

// normalizeIdPRoute collapses path segments that vary per user or tenant
// so the route label stays low-cardinality
func normalizeIdPRoute(path string) string {
	if path == "" {
		return "/"
	}
	normalized := path
	for _, p := range idpRoutePatterns {
		normalized = p.regex.ReplaceAllString(normalized, p.replace)
	}
	return normalized
}

// classifyIdPError categorizes identity provider failures for metrics
func classifyIdPError(statusCode int, err error) string {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "canceled"
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "timeout"
		}
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "timeout"):
			return "timeout"
		case strings.Contains(errStr, "connection"):
			return "connection"
		case strings.Contains(errStr, "tls"), strings.Contains(errStr, "TLS"), strings.Contains(errStr, "x509"):
			return "tls"
		default:
			return "network"
		}
	}

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
