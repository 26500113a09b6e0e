package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/devilmonastery/ara/internal/pkg/metrics"
)

// Metrics records request counts and latency per route template
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPActiveRequests.Inc()
		defer metrics.HTTPActiveRequests.Dec()

		start := time.Now()
		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		metrics.RecordHTTPRequest(r.Method, routeName(r), wrapped.statusCode, time.Since(start))
	})
}

// routeName returns the matched path template so provider codes do not
// become label values
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
