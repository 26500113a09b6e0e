package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/devilmonastery/ara/internal/auth"
	"github.com/devilmonastery/ara/internal/pkg/logger"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func wrap(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// LogRequest logs every request except health checks
func LogRequest(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := wrap(w)
			next.ServeHTTP(wrapped, r)

			clientIP := r.RemoteAddr
			if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
				clientIP = forwarded
			} else if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
				clientIP = realIP
			}

			attrs := []any{
				slog.Int("status", wrapped.statusCode),
				slog.Int64("bytes", wrapped.written),
				slog.String("client_ip", clientIP),
				slog.String("user_agent", r.UserAgent()),
			}
			if p, err := auth.GetPrincipalFromContext(r.Context()); err == nil {
				attrs = append(attrs, slog.String("user_id", p.UserID))
			}

			// The query string of a callback carries the authorization code and is not logged.
			l := logger.WithDuration(logger.WithHTTPRequest(log, r.Method, r.URL.Path), time.Since(start))
			if wrapped.statusCode >= 500 {
				l.Error("http request", attrs...)
			} else {
				l.Info("http request", attrs...)
			}
		})
	}
}
