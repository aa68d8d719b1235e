/*
Package identity canonicalizes the free-text worker identifiers used
across the CalAIM collections.

PURPOSE:
  The three source collections (assigned members, visit records, claims)
  disagree on whether a social worker is identified by display name,
  email, or an opaque id. This package produces the canonical join key
  used to reconcile them, plus the shared "truthy-like" parser for the
  many boolean spellings the upstream system emits.

KEY FUNCTIONS:
  Normalize: free-text identifier -> stable lowercase join key
  Truthy:    bool/number/string -> bool, accepting "1", "yes", "on", ...

DESIGN PRINCIPLES:
  1. Purity: no hidden state, no I/O. Both functions are deterministic.
  2. Empty means absent: Normalize("") == "" and an empty key must never
     be used as a bucket; callers drop those records from joins.

SEE ALSO:
  - reconcile/summary.go: buckets records by Normalize(worker)
  - visit/eligibility.go: hold-flag check via Truthy
*/
package identity

import (
	"strconv"
	"strings"
)

// Normalize canonicalizes a free-text worker identifier (name, email, or
// opaque id) into a stable join key: lowercase, with every run of
// characters outside [a-z0-9] collapsed to a single space, trimmed.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
// An empty result means "no identity" and must not be used as a key.
func Normalize(raw string) string {
	lower := strings.ToLower(raw)

	var b strings.Builder
	b.Grow(len(lower))
	pendingSpace := false
	for _, r := range lower {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pendingSpace = true
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// Truthy interprets the upstream system's many spellings of "true".
// It accepts boolean true, any non-zero number, and the strings "1",
// "true", "yes", "y", "on" (case-insensitive). Any string containing
// the substring "hold" also counts, because the member collection stores
// hold flags as free text like "Hold for SW".
//
// Everything else, including nil, is false.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		switch s {
		case "1", "true", "yes", "y", "on":
			return true
		}
		if strings.Contains(s, "hold") {
			return true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0
		}
		return false
	default:
		return false
	}
}
