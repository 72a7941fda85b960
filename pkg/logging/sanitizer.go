package logging

import (
	"net/url"
	"regexp"
)

// RedactedText is the replacement text for sensitive data
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Authorization header values: "token ghp_xxx", "Bearer xxx"
	authHeaderPattern = regexp.MustCompile(`(?i)\b(token|bearer)\s+[A-Za-z0-9._~+/=-]{8,}`)

	// GitHub personal access tokens that leak into messages on their own
	githubTokenPattern = regexp.MustCompile(`\b(ghp|gho|ghu|ghs|ghr|github_pat)_[A-Za-z0-9_]{10,}`)

	// access_token=xxx, token=xxx, api_key=xxx in query strings
	queryTokenPattern = regexp.MustCompile(`(?i)(access_token|token|api[_-]?key|apikey|key)=[^&\s"]+`)

	// user:pass@host
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@`)
)

// SanitizeConnectionString removes credentials from a database connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
}

// SanitizeURL strips userinfo and token-like query parameters from a provider URL.
// Unparseable input falls back to pattern redaction.
func SanitizeURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return sanitizeString(raw)
	}
	if u.User != nil {
		u.User = url.User(RedactedText)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if queryTokenPattern.MatchString(key + "=x") {
				q.Set(key, RedactedText)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// SanitizeError redacts tokens and credentials from an error message before logging.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return sanitizeString(err.Error())
}

func sanitizeString(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = authHeaderPattern.ReplaceAllString(s, "${1} "+RedactedText)
	s = githubTokenPattern.ReplaceAllString(s, RedactedText)
	s = queryTokenPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@")
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
