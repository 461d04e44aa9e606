package logging

import (
	"net/url"
	"regexp"
)

// absolutePathPattern matches POSIX-style absolute path segments so they can
// be collapsed before a message reaches a client or external store.
var absolutePathPattern = regexp.MustCompile(`(?:/[\w.-]+){2,}/?`)

// credentialPattern matches common "key: value" / "key=value" credential
// shapes (bearer tokens, API keys, passwords, secrets) case-insensitively.
var credentialPattern = regexp.MustCompile(`(?i)(bearer\s+|token[=:]\s*|apikey[=:]\s*|password[=:]\s*|secret[=:]\s*)\S+`)

// urlPattern matches absolute http(s) URLs so they can be reduced to their
// host component.
var urlPattern = regexp.MustCompile(`https?://[^\s"']+`)

// Sanitize redacts credentials, reduces URLs to their host, and collapses
// absolute filesystem paths in a user-facing error or log message. Used
// wherever an internal error crosses into a client-visible surface: HTTP
// error bodies, JSON-RPC error data, health responses.
func Sanitize(msg string) string {
	if msg == "" {
		return ""
	}
	msg = urlPattern.ReplaceAllStringFunc(msg, sanitizeURL)
	msg = credentialPattern.ReplaceAllString(msg, "$1"+RedactCredential)
	msg = absolutePathPattern.ReplaceAllString(msg, RedactPath)
	return msg
}

func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[REDACTED_URL]"
	}
	return u.Scheme + "://" + u.Host
}
