// Package oauth implements a self-contained OAuth 2.1 authorization server:
// dynamic client registration, authorization-code-plus-PKCE issuance, token
// exchange and revocation, and the tag-scope model the router consumes to
// decide which upstreams a bearer token authorizes. There is no delegation
// to an external identity provider — consent is a local decision and every
// record (client, authorization code, access token) lives in a file-backed
// store under the host process's own storage directory.
package oauth
