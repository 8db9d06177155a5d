package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// Query parameter and header names whose values are never logged.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credential",
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(hf_[a-zA-Z0-9]{30,})`),          // Hugging Face token
	regexp.MustCompile(`(?i)(ghp_[a-zA-Z0-9]{36})`),          // GitHub PAT
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9._-]{20,})`), // Bearer tokens
	regexp.MustCompile(`(?i)(token|secret|password)[=:]["']?([a-zA-Z0-9+/=_-]{16,})["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces sensitive information in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// RedactURL strips userinfo and sensitive query values from a URL before it is
// logged. Unparseable input falls back to Redact.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Redact(raw)
	}
	if u.User != nil {
		u.User = url.User(RedactedValue)
	}
	if u.RawQuery != "" {
		query := u.Query()
		for key := range query {
			if IsSensitiveField(key) {
				query.Set(key, RedactedValue)
			}
		}
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
