// Package redact keeps secret values out of log output: repository
// credential ciphertext, token secrets, and Basic-auth headers must never
// reach a log sink in clear or even ciphertext form.
package redact

import "strings"

const redactedValue = "***REDACTED***"

// AuthHeader returns a safe-to-log placeholder for an Authorization header
// value, preserving only the scheme (Bearer/Basic) for diagnostic value.
func AuthHeader(value string) string {
	if value == "" {
		return ""
	}
	scheme := value
	if i := strings.IndexByte(value, ' '); i >= 0 {
		scheme = value[:i]
	}
	return scheme + " " + redactedValue
}

// Secret returns a fixed placeholder for any secret value (token plaintext,
// credential ciphertext) that must never appear in logs.
func Secret(string) string {
	return redactedValue
}

// Fields redacts a known set of sensitive keys in a loggable map, in place.
// Keeps key names so readers know which fields existed.
func Fields(fields map[string]any) {
	if fields == nil {
		return
	}
	for _, k := range []string{"authorization", "secret", "password", "credentials_ciphertext", "token"} {
		if _, ok := fields[k]; ok {
			fields[k] = redactedValue
		}
	}
}
