package utils

import (
	"net/url"
	"strings"
)

const redacted = "*****"

// Query parameters whose values never reach the logs.
var secretParams = []string{"password", "token", "api_key", "apikey", "secret", "key"}

// SanitizeConnectionString removes credentials from connection strings and
// endpoint URLs for safe logging. Passwords in the user info and secret-looking
// query parameters are redacted; plain file paths pass through.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	scheme, _, hasScheme := strings.Cut(connStr, "://")
	if !hasScheme {
		return redactUserInfo(connStr)
	}

	parsedURL, err := url.Parse(connStr)
	if err != nil {
		return scheme + "://" + redacted
	}
	if parsedURL.User != nil {
		if _, ok := parsedURL.User.Password(); ok {
			parsedURL.User = url.UserPassword(parsedURL.User.Username(), redacted)
		}
	}
	if parsedURL.RawQuery != "" {
		q := parsedURL.Query()
		for name := range q {
			for _, secret := range secretParams {
				if strings.EqualFold(name, secret) {
					q.Set(name, redacted)
				}
			}
		}
		parsedURL.RawQuery = q.Encode()
	}
	return parsedURL.String()
}

// redactUserInfo handles DSNs without a scheme, e.g. "user:pass@host/db".
func redactUserInfo(connStr string) string {
	userPart, rest, ok := strings.Cut(connStr, "@")
	if !ok {
		return connStr
	}
	if colonIdx := strings.LastIndex(userPart, ":"); colonIdx != -1 {
		return userPart[:colonIdx+1] + redacted + "@" + rest
	}
	return connStr
}
