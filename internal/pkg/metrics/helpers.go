package metrics

import (
	"strings"
	"time"
)

// Login outcomes reported on ara_logins_total.
const (
	OutcomeSuccess           = "success"
	OutcomeFetchFailed       = "fetch_failed"
	OutcomeMappingFailed     = "mapping_failed"
	OutcomePersistenceFailed = "persistence_failed"
)

// RecordDBOperation records database operation metrics consistently
// repo: repository name (e.g., "user", "role", "group")
// operation: operation name (e.g., "upsert", "get", "replace", "list")
// rowsAffected: number of rows affected/returned (-1 if not applicable)
func RecordDBOperation(repo, operation string, duration time.Duration, rowsAffected int64, err error) {
	ms := float64(duration.Milliseconds())
	DBDuration.WithLabelValues(repo, operation).Observe(ms)

	if rowsAffected >= 0 {
		DBRowsAffected.WithLabelValues(repo, operation).Observe(float64(rowsAffected))
	}

	status := "success"
	if err != nil {
		status = "error"
		DBErrors.WithLabelValues(repo, operation, classifyDBError(err)).Inc()
	}
	DBOperations.WithLabelValues(repo, operation, status).Inc()
}

// RecordLogin records the outcome and latency of one pass through the login pipeline.
func RecordLogin(provider, outcome string, duration time.Duration) {
	Logins.WithLabelValues(provider, outcome).Inc()
	LoginDuration.WithLabelValues(provider).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequest records a completed HTTP request against its route template.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(float64(duration.Milliseconds()))
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// classifyDBError categorizes database errors for metrics
func classifyDBError(err error) string {
	if err == nil {
		return "none"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "duplicate") || strings.Contains(errStr, "unique constraint"):
		return "duplicate"
	case strings.Contains(errStr, "not found") || strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "connect"):
		return "connection"
	case strings.Contains(errStr, "foreign key") || strings.Contains(errStr, "fk_"):
		return "foreign_key"
	case strings.Contains(errStr, "constraint"):
		return "constraint"
	case strings.Contains(errStr, "deadlock"):
		return "deadlock"
	default:
		return "other"
	}
}
