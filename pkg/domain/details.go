package domain

import (
	"maps"
	"slices"
	"strings"
)

// RedactedValue replaces sensitive detail values.
const RedactedValue = "***"

// sensitiveMarkers are matched case-insensitively as substrings of detail keys.
var sensitiveMarkers = []string{"password", "token", "secret", "key", "credential"}

// Details is the structured payload attached to events and audit records.
// Values are strings so that every payload can be hashed, stored and
// searched without reflection.
type Details map[string]string

// With returns a copy of d with k set to v.
func (d Details) With(k, v string) Details {
	out := make(Details, len(d)+1)
	maps.Copy(out, d)
	out[k] = v
	return out
}

// Redact returns a copy with sensitive keys masked. Nil stays nil.
func (d Details) Redact() Details {
	if d == nil {
		return nil
	}
	out := make(Details, len(d))
	for k, v := range d {
		if IsSensitiveKey(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (d Details) Keys() []string {
	return slices.Sorted(maps.Keys(d))
}

// IsSensitiveKey reports whether a detail key names secret material.
func IsSensitiveKey(k string) bool {
	lower := strings.ToLower(k)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
