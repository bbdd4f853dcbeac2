// File path: internal/index/trigram.go
package index

import "strings"

// trigramSet extracts the set of letter trigrams from a string, padded the
// way pg_trgm does ("  ab", " abc", ..., "bc "). Comparison is
// case-insensitive.
func trigramSet(s string) map[string]struct{} {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	set := make(map[string]struct{})
	for _, word := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		padded := "  " + word + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = struct{}{}
		}
	}
	return set
}

// trigramSimilarity is |A ∩ B| / |A ∪ B| over the two trigram sets, in
// [0, 1]. It mirrors the pg_trgm similarity() the original schema leaned on.
func trigramSimilarity(a, b string) float64 {
	setA := trigramSet(a)
	setB := trigramSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
