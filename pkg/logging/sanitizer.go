package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxQueryLogLength is the maximum length of a Flux query to log
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// InfluxDB API tokens travel as "Authorization: Token xxx"
	influxTokenHeaderPattern = regexp.MustCompile(`(?i)(Authorization"?\s*:\s*"?)Token\s+[A-Za-z0-9_\-=+/.]+`)

	// A bare "Token xxx" only counts when xxx is token shaped, so prose survives
	influxTokenPattern = regexp.MustCompile(`(?i)\bToken\s+[A-Za-z0-9_\-=+/.]{20,}`)

	// Session tokens and any other bearer credential
	bearerPattern = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9_\-=+/.]+`)

	// token=xxx, api_key=xxx, password=xxx in query strings or messages
	keyValuePattern = regexp.MustCompile(`(?i)\b(token|api[_-]?key|apikey|password|pwd)=[^;&\s"]+`)

	// user:pass@host credentials embedded in URLs
	userInfoPattern = regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@`)
)

// SanitizeURL removes embedded credentials from an InfluxDB URL.
// Use this before logging any user supplied endpoint.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	sanitized := userInfoPattern.ReplaceAllString(rawURL, "://"+RedactedText+"@")
	return keyValuePattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging any error returned by InfluxDB or the HTTP transport.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return sanitize(err.Error())
}

// SanitizeQuery truncates and sanitizes a Flux query for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return sanitize(TruncateString(query, MaxQueryLogLength))
}

func sanitize(s string) string {
	s = influxTokenHeaderPattern.ReplaceAllString(s, "${1}Token "+RedactedText)
	s = influxTokenPattern.ReplaceAllString(s, "Token "+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = keyValuePattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = userInfoPattern.ReplaceAllString(s, "://"+RedactedText+"@")
	return s
}

// TruncateString truncates a string to maxLen runes and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
