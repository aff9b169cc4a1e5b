// File: internal/infra/metrics/metrics.go
package metrics

import "strings"

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
