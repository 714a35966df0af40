// Package util provides small helpers shared across the library.
package util

import "strings"

// SafeTruncate safely truncates a string to maxLen characters without
// panicking. Used when logging sensitive data like tokens and session IDs,
// where only a prefix should be shown.
//
// If maxLen is negative, returns an empty string.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL normalizes a URL for comparison and endpoint derivation by
// removing trailing slashes.
//
//	NormalizeURL("https://example.com/") // "https://example.com"
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
