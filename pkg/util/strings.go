package util

import "strings"

// NormalizeHeader lowercases and trims a CSV header cell.
func NormalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
}
