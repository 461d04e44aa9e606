// Package oauth provides the OAuth/OIDC server metadata envelope (RFC
// 8414) and PKCE (RFC 7636) code generation/verification that
// internal/oauth's authorization server builds its own endpoints on.
package oauth
