package canon

import (
	"strings"
)

// TitleCase normalizes free-text city input the way the upstream feed
// stores it: first letter of each word upper, rest lower.
// "north york" -> "North York", "TORONTO" -> "Toronto".
func TitleCase(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[:1])) + strings.ToLower(string(r[1:]))
	}
	return strings.Join(words, " ")
}

// PostalPrefix extracts the forward sortation area from a postal code:
// the first three characters of the edge-trimmed input, uppercased.
// Returns "" unless that prefix is exactly three characters after
// trimming, so "K2 1A1" is skipped rather than compacted to "K21".
func PostalPrefix(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) < 3 {
		return ""
	}
	prefix := strings.TrimSpace(c[:3])
	if len(prefix) != 3 {
		return ""
	}
	return prefix
}

// CollapseSpaces squashes runs of whitespace to single spaces.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ListingCacheKey builds a stable cache key for one listing.
func ListingCacheKey(listingKey string) string {
	return strings.ToUpper(CollapseSpaces(listingKey))
}
