package account

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// claimString reads a claim as a string. Numbers are rendered without an
// exponent and booleans as "true"/"false". Missing, empty, null and
// structured values are reported as absent.
func claimString(attrs map[string]any, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	v, ok := attrs[name]
	if !ok || v == nil {
		return "", false
	}

	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = formatFloat(t)
	case float32:
		s = formatFloat(float64(t))
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case uint64:
		s = strconv.FormatUint(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// formatFloat renders integral values like 12345678 rather than 1.2345678e+07,
// which matters for numeric ids such as GitHub's.
func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e18 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func optionalClaim(attrs map[string]any, name string) *string {
	s, ok := claimString(attrs, name)
	if !ok {
		return nil
	}
	return &s
}

// splitName splits a full name on the first space
func splitName(full string) (first, last *string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return nil, nil
	}
	parts := strings.SplitN(full, " ", 2)
	f := parts[0]
	first = &f
	if len(parts) == 2 {
		if l := strings.TrimSpace(parts[1]); l != "" {
			last = &l
		}
	}
	return first, last
}
