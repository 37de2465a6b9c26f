// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	return dedupe(values, func(s string) string { return s })
}

// DedupeAndTrimLower is like DedupeAndTrim but also lowercases each element.
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, strings.ToLower)
}

// DedupeAndTrimUpper is like DedupeAndTrim but also uppercases each element.
func DedupeAndTrimUpper(values []string) []string {
	return dedupe(values, strings.ToUpper)
}

// SplitCSV flattens repeated and comma-separated query values:
// ["a,b", "c"] becomes ["a", "b", "c"]. Empty parts are kept for the
// Dedupe helpers to drop.
func SplitCSV(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}

func dedupe(values []string, canon func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		c := canon(strings.TrimSpace(v))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			result = append(result, c)
		}
	}

	return result
}
