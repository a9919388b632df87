package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces any value detected as a credential.
const RedactedPlaceholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// OpenAI keys, legacy and project scoped
	regexp.MustCompile(`(sk-[a-zA-Z0-9_-]{20,})`),
	// AWS access key ids
	regexp.MustCompile(`((?:AKIA|ASIA)[0-9A-Z]{16})`),
	// Hugging Face tokens
	regexp.MustCompile(`(hf_[a-zA-Z0-9]{30,})`),
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),
	regexp.MustCompile(`(?i)(aws_secret_access_key\s*[:=]\s*[^\s,;]{16,})`),
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),
}

// Field names containing any of these are redacted whatever their value.
var sensitiveFieldMarkers = []string{
	"OPENAI_API_KEY",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"HF_TOKEN",
	"PASSWORD",
	"SECRET",
	"API_KEY",
	"APIKEY",
	"AUTHORIZATION",
}

// RedactSensitiveData replaces every credential-looking substring of value.
//
//	RedactSensitiveData("key is sk-abc123def456ghi789jkl0")
//	// "key is [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	for _, p := range sensitivePatterns {
		value = p.ReplaceAllString(value, RedactedPlaceholder)
	}
	return value
}

// RedactField redacts by field name first, then by value content.
func RedactField(fieldName, fieldValue string) string {
	if IsSensitiveField(fieldName) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(fieldValue)
}

// IsSensitiveField reports whether a field name marks its value as secret.
func IsSensitiveField(fieldName string) bool {
	upper := strings.ToUpper(fieldName)
	for _, marker := range sensitiveFieldMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
