package oauth

import "errors"

// AuthError is a standard OAuth 2.1 error response: a machine-readable code
// plus a human-readable description, mapped directly onto the JSON error
// body and (for token-endpoint errors) the matching HTTP status.
type AuthError struct {
	Code        string
	Description string
}

func (e *AuthError) Error() string { return e.Code + ": " + e.Description }

func newAuthError(code, desc string) *AuthError {
	return &AuthError{Code: code, Description: desc}
}

var (
	errInvalidClient  = newAuthError("invalid_client", "unknown or unauthorized client")
	errInvalidGrant   = newAuthError("invalid_grant", "the authorization grant is invalid, expired, or already used")
	errInvalidRequest = newAuthError("invalid_request", "the request is missing a required parameter or is otherwise malformed")
	errInvalidToken   = newAuthError("invalid_token", "the access token is invalid or expired")
	errInvalidScope   = newAuthError("invalid_scope", "the requested scope is unknown or malformed")
)

// statusFor maps an AuthError code to its HTTP status per RFC 6749 §5.2 and
// the bearer token usage spec (RFC 6750 §3.1).
func statusFor(err *AuthError) int {
	switch err.Code {
	case "invalid_client":
		return 401
	case "invalid_token":
		return 401
	case "insufficient_scope":
		return 403
	case "rate_limit_exceeded":
		return 429
	default:
		return 400
	}
}

// asAuthError unwraps err to an *AuthError, defaulting to invalid_request.
func asAuthError(err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return newAuthError("invalid_request", err.Error())
}
