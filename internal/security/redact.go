// Package security masks credentials before they reach logs, notifications
// or API responses.
package security

import (
	"regexp"
	"strings"
)

// sensitiveFields are map keys whose values are always masked.
var sensitiveFields = map[string]bool{
	"api_key":       true,
	"api_secret":    true,
	"apikey":        true,
	"secret":        true,
	"secret_key":    true,
	"password":      true,
	"token":         true,
	"access_token":  true,
	"auth_token":    true,
	"authorization": true,
	"credentials":   true,
}

// redactRule masks one capture group of every match.
type redactRule struct {
	re    *regexp.Regexp
	group int
}

var redactRules = []redactRule{
	// key=value, key: value and JSON-ish "key":"value"
	{regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|secret[_-]?key|key[_-]?id|access[_-]?token|auth[_-]?token|password|apca-api-(?:key|secret)-id)(["']?\s*[=:]\s*["']?)([^\s"'&,}]+)`), 3},
	{regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-]+)`), 2},
	// URL userinfo, e.g. redis://:pass@host
	{regexp.MustCompile(`(://[^:/@\s]*:)([^@\s]+)(@)`), 2},
	// OpenAI keys
	{regexp.MustCompile(`sk-[A-Za-z0-9_\-]{20,}`), 0},
}

// MaskCredential keeps at most the first and last four characters of value.
func MaskCredential(value string) string {
	switch {
	case value == "":
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks credentials found in free text.
func Redact(input string) string {
	result := input
	for _, rule := range redactRules {
		result = redactGroup(result, rule)
	}
	return result
}

func redactGroup(input string, rule redactRule) string {
	matches := rule.re.FindAllStringSubmatchIndex(input, -1)
	if matches == nil {
		return input
	}
	var sb strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[2*rule.group], m[2*rule.group+1]
		if start < 0 {
			continue
		}
		sb.WriteString(input[last:start])
		sb.WriteString(MaskCredential(input[start:end]))
		last = end
	}
	sb.WriteString(input[last:])
	return sb.String()
}

// IsSensitiveField reports whether a field name holds a credential.
func IsSensitiveField(field string) bool {
	return sensitiveFields[strings.ToLower(field)]
}

// RedactFields returns a copy of data with sensitive keys masked and
// credentials in string values redacted.
func RedactFields(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		s, isString := v.(string)
		switch {
		case IsSensitiveField(k) && isString:
			out[k] = MaskCredential(s)
		case IsSensitiveField(k):
			out[k] = "***"
		case isString:
			out[k] = Redact(s)
		default:
			out[k] = v
		}
	}
	return out
}
