package logging

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Redactor removes upstream credentials from log output.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a Redactor with the built-in credential patterns.
func NewRedactor() *Redactor {
	specs := []struct {
		name, regex, replacement string
	}{
		// Provider API keys (sk- prefix and key=value forms).
		{"api_key", `(sk-[a-zA-Z0-9_-]+|api[-_]?key[-_:=]\s*[a-zA-Z0-9_-]+)`, "sk-***"},
		// Authorization header values.
		{"bearer_token", `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
		// Generic secret/token assignments.
		{"secret", `(secret|token|password)[:=]\s*[^\s]+`, "$1: ***"},
	}

	r := &Redactor{}
	for _, s := range specs {
		r.patterns = append(r.patterns, &redactPattern{
			name:        s.name,
			regex:       regexp.MustCompile(s.regex),
			replacement: s.replacement,
		})
	}
	return r
}

// RedactString redacts credentials embedded in a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	redacted := value
	for _, p := range r.patterns {
		redacted = p.regex.ReplaceAllString(redacted, p.replacement)
	}
	return redacted
}

// RedactAttr redacts a single log attribute. Attributes whose key names a
// credential are replaced wholesale; string values are pattern-scrubbed.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, ga := range group {
			clean[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, redactValue(a.Value))
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	return a
}

// isSensitiveKey checks if a key name indicates credential material.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range []string{
		"password", "secret", "token",
		"api_key", "apikey", "credential",
		"auth", "authorization",
	} {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// redactValue collapses a sensitive value, keeping a short prefix as a hint.
func redactValue(v slog.Value) string {
	s := fmt.Sprintf("%v", v.Any())
	if len(s) <= 4 {
		return "***"
	}
	return s[:4] + "***"
}

// RedactAPIKey redacts an API key, keeping only a prefix.
func RedactAPIKey(apiKey string) string {
	if len(apiKey) <= 4 {
		return "***"
	}
	return apiKey[:4] + "***"
}
