package oauth

import pkgoauth "github.com/giantswarm/1mcp/pkg/oauth"

// metadata builds the RFC 8414 authorization server metadata document,
// using pkg/oauth.Metadata as the response envelope.
func (s *Server) metadata() pkgoauth.Metadata {
	base := s.cfg.BaseURL
	return pkgoauth.Metadata{
		Issuer:                            base,
		AuthorizationEndpoint:             base + "/authorize",
		TokenEndpoint:                     base + "/token",
		RegistrationEndpoint:              base + "/register",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported: []string{"none", "client_secret_post"},
		CodeChallengeMethodsSupported:     []string{"S256"},
	}
}
