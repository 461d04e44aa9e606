package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// TokenInfo is the authorization outcome of a validated bearer token: the
// client identity that requested it and the tag scopes it authorizes.
type TokenInfo struct {
	ClientID string
	Tags     map[string]struct{} // derived from "tag:<name>" scopes
}

// Validator checks a bearer token against the authorization core's session
// store. Implemented by internal/oauth; this package only depends on the
// interface to avoid a transport<->oauth import cycle.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (TokenInfo, error)
}

// anonymousTokenInfo is installed on every request when auth is disabled: a
// nil Tags set means "the universe of configured tags", per spec.
var anonymousTokenInfo = TokenInfo{ClientID: "anonymous", Tags: nil}

// AuthMiddleware validates the bearer token against validator when auth is
// enabled, attaching the resulting TokenInfo to the request context.
// Disabled auth always attaches anonymousTokenInfo and never rejects a
// request.
func AuthMiddleware(enabled bool, resourceMetadataURL string, validator Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r.WithContext(withTokenInfo(r.Context(), anonymousTokenInfo)))
				return
			}

			token := bearerToken(r)
			if token == "" {
				writeUnauthorized(w, resourceMetadataURL, "invalid_token", "missing bearer token")
				return
			}

			info, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, resourceMetadataURL, "invalid_token", err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(withTokenInfo(r.Context(), info)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

func writeUnauthorized(w http.ResponseWriter, resourceMetadataURL, errCode, desc string) {
	challenge := fmt.Sprintf(`Bearer error=%q, error_description=%q`, errCode, desc)
	if resourceMetadataURL != "" {
		challenge += fmt.Sprintf(`, resource_metadata=%q`, resourceMetadataURL)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, fmt.Sprintf(`{"error":%q,"error_description":%q}`, errCode, desc), http.StatusUnauthorized)
}

type tokenInfoContextKey struct{}

func withTokenInfo(ctx context.Context, info TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoContextKey{}, info)
}

func tokenInfoFromContext(ctx context.Context) TokenInfo {
	if info, ok := ctx.Value(tokenInfoContextKey{}).(TokenInfo); ok {
		return info
	}
	return anonymousTokenInfo
}
