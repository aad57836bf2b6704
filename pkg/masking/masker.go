// Package masking scrubs credential-shaped values out of envelope actor
// context and DLQ diagnostics before they are persisted. Quarantined
// payloads sit in the dead-letter log indefinitely; a leaked token there
// outlives any rotation window.
package masking

import (
	"regexp"
	"strings"
)

const maskedValue = "***MASKED***"

// sensitiveKeys are map keys whose values are masked outright, whatever
// they look like.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"access_key":    true,
	"private_key":   true,
	"authorization": true,
	"credential":    true,
}

// valuePatterns catch secret-shaped strings under innocent keys.
var valuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9._~+/-]+=*`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)\s*[=:]\s*\S+`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`), // JWTs
}

// Masker applies key- and pattern-based masking to nested maps.
type Masker struct{}

func New() *Masker { return &Masker{} }

// MaskString replaces secret-shaped substrings.
func (m *Masker) MaskString(s string) string {
	for _, p := range valuePatterns {
		s = p.ReplaceAllString(s, maskedValue)
	}
	return s
}

// MaskMap returns a masked deep copy; the input is never mutated.
func (m *Masker) MaskMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if sensitiveKeys[strings.ToLower(k)] {
			out[k] = maskedValue
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = m.MaskString(val)
		case map[string]any:
			out[k] = m.MaskMap(val)
		case []any:
			out[k] = m.maskSlice(val)
		default:
			out[k] = v
		}
	}
	return out
}

func (m *Masker) maskSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		switch val := v.(type) {
		case string:
			out[i] = m.MaskString(val)
		case map[string]any:
			out[i] = m.MaskMap(val)
		case []any:
			out[i] = m.maskSlice(val)
		default:
			out[i] = v
		}
	}
	return out
}
