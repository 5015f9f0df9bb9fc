package http

import (
	"net/http"
	"strings"
	"time"

	"budgetbuddy/internal/core"
)

// parseCategoryTypeQuery reads ?type=, defaulting to variable expenses.
func parseCategoryTypeQuery(r *http.Request) (core.CategoryType, error) {
	v := strings.TrimSpace(r.URL.Query().Get("type"))
	if v == "" {
		return core.VariableExpenseCategory, nil
	}
	return parseCategoryType(v)
}

// formatEuros formats a Money as a Euro currency string (e.g., "€12,34").
func formatEuros(m core.Money) string {
	s := strings.Replace(m.String(), ".", ",", 1)
	if strings.HasPrefix(s, "-") {
		return "-€" + s[1:]
	}
	return "€" + s
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// formatTimestamp renders t as RFC 3339 in UTC, or "" for the zero time.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
