// Package redact strips sensitive fields from arbitrary payloads before
// they reach durable storage. Sanitization is a recursive walk over the
// JSON shape of a value (object / array / scalar), so behavior is
// well-defined for any input.
package redact

import (
	"encoding/json"
	"strings"
)

// Marker replaces the value of every sensitive field.
const Marker = "[REDACTED]"

// defaultTerms match field names that must never be persisted in clear.
// A field is sensitive if its lowercased name contains one of these terms
// or ends in "key" (api_key, apiKey, secretKey, ...).
var defaultTerms = []string{
	"password",
	"secret",
	"token",
	"auth",
	"credential",
	"bearer",
}

// Sanitizer applies the redaction rule with an optional set of extra terms.
type Sanitizer struct {
	terms []string
}

// New creates a Sanitizer with the default terms plus any extras.
func New(extraTerms ...string) *Sanitizer {
	terms := make([]string, 0, len(defaultTerms)+len(extraTerms))
	terms = append(terms, defaultTerms...)
	for _, t := range extraTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &Sanitizer{terms: terms}
}

var defaultSanitizer = New()

// Sanitize applies the default redaction rule to v.
func Sanitize(v any) any {
	return defaultSanitizer.Sanitize(v)
}

// Sanitize returns a deep copy of v with every sensitive field replaced by
// Marker. Native maps and slices are walked field-by-field, so one member
// that cannot be serialized never exempts its siblings from redaction. It
// never fails: only a leaf that cannot be normalized to a JSON shape passes
// through unchanged.
func (s *Sanitizer) Sanitize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if s.Sensitive(k) {
				out[k] = Marker
				continue
			}
			out[k] = s.Sanitize(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = s.Sanitize(child)
		}
		return out
	}

	normalized, ok := normalize(v)
	if !ok {
		return v
	}
	return s.walk(normalized)
}

// Sensitive reports whether a field name matches the redaction rule.
func (s *Sanitizer) Sensitive(field string) bool {
	lower := strings.ToLower(field)
	if strings.HasSuffix(lower, "key") {
		return true
	}
	for _, term := range s.terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// normalize round-trips v through JSON so the walk only ever sees
// map[string]any, []any, and scalars.
func normalize(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func (s *Sanitizer) walk(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if s.Sensitive(k) {
				out[k] = Marker
				continue
			}
			out[k] = s.walk(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = s.walk(child)
		}
		return out
	default:
		return v
	}
}
