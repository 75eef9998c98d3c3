// Package strings provides string slice helpers for permission and role lists.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and blanks, trimming each element.
// Order of first occurrence is preserved.
func DedupeAndTrim(values []string) []string {
	return Union(values)
}

// Union merges lists into one, trimming, dropping blanks and keeping only the
// first occurrence of each value. A nil result is returned only when every
// input is nil.
func Union(lists ...[]string) []string {
	total := 0
	allNil := true
	for _, l := range lists {
		total += len(l)
		if l != nil {
			allNil = false
		}
	}
	if allNil {
		return nil
	}

	seen := make(map[string]struct{}, total)
	result := make([]string, 0, total)
	for _, l := range lists {
		for _, v := range l {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; ok {
				continue
			}
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}
	return result
}

// DedupeAndTrimLower is DedupeAndTrim with case folding, for role names.
func DedupeAndTrimLower(values []string) []string {
	lowered := make([]string, len(values))
	for i, v := range values {
		lowered[i] = strings.ToLower(v)
	}
	if values == nil {
		return nil
	}
	return Union(lowered)
}
