package common

import "strings"

// HasAny reports whether s contains any of the substrings.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// NormalizeQuery trims surrounding whitespace and lower-cases s for
// case-insensitive comparisons.
func NormalizeQuery(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
