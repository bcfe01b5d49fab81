package logging

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mercator-hq/luthien/pkg/config"
)

// Redactor masks credentials and personal data in log values.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternEmail       = "email"
	PatternPassword    = "password"
)

var defaultPatterns = []struct {
	name        string
	regex       string
	replacement string
}{
	{PatternBearerToken, `(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
	{PatternAPIKey, `sk-[a-zA-Z0-9_\-]{4,}`, "sk-***"},
	{PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "***@***"},
	{PatternPassword, `(?i)(password|passwd|pwd)[:=]\s*[^\s]+`, "$1=***"},
}

// sensitiveKeys mark attribute keys whose values are masked whole.
var sensitiveKeys = []string{
	"password", "passwd", "secret", "token",
	"api_key", "apikey", "authorization", "private_key",
}

// NewRedactor creates a Redactor with the built-in patterns followed by
// custom ones. Custom patterns that fail to compile are reported.
func NewRedactor(custom []config.RedactPattern) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}

	for _, p := range custom {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p.Name, err)
		}
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}
	return r, nil
}

// RedactString applies every pattern to value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, pattern := range r.patterns {
		value = pattern.regex.ReplaceAllString(value, pattern.replacement)
	}
	return value
}

// RedactAttr returns a with its value redacted. Groups are walked.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		group := v.Group()
		redacted := make([]slog.Attr, len(group))
		for i, ga := range group {
			redacted[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, maskValue(v))
	}

	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// maskValue keeps a short prefix of string values for correlation.
func maskValue(v slog.Value) string {
	if v.Kind() != slog.KindString {
		return "***"
	}
	s := v.String()
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***"
}

// RedactAPIKey redacts an API key, keeping only a prefix.
func RedactAPIKey(apiKey string) string {
	return maskValue(slog.StringValue(apiKey))
}
