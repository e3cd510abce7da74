// Package utils provides shared utilities for text, math, and logging.
package utils

import "strings"

// Truncate returns s truncated to maxLen runes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// NormalizeQuery replaces hyphens with spaces and trims surrounding whitespace,
// so "state-of-the-art" reaches the lexical index as separate terms.
func NormalizeQuery(q string) string {
	return strings.TrimSpace(strings.ReplaceAll(q, "-", " "))
}
