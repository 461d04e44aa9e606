package oauth

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	pkgoauth "github.com/giantswarm/1mcp/pkg/oauth"

	"github.com/giantswarm/1mcp/internal/transport"
)

// Default token lifetimes. Grounded on the teacher's own OAuth HTTP server
// tuning (DefaultAccessTokenTTL/DefaultRefreshTokenTTL), scaled down: there
// is no external identity provider here to align with, so these are just
// this server's own defaults rather than a match to an upstream IdP.
const (
	DefaultAuthRequestTTL  = 5 * time.Minute
	DefaultCodeTTL         = time.Minute
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

const (
	clientPrefix  = "client_"
	requestPrefix = "req_"
	codePrefix    = "code_"
	tokenPrefix   = "tkn_"
)

// Config configures Server construction.
type Config struct {
	// StorageDir is the root directory for clients/, requests/, codes/ and
	// sessions/ subdirectories. Created if absent.
	StorageDir string

	// BaseURL is this server's own issuer identity, used in discovery
	// metadata and as the default audience.
	BaseURL string

	// AutoApprove skips the consent view and immediately issues a code,
	// for development and for clients trusted out of band.
	AutoApprove bool

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// KnownTags supplies the live union of upstream tags a requested
	// "tag:<name>" scope is validated against.
	KnownTags func() map[string]struct{}
}

// Server is a self-contained OAuth 2.1 authorization server: dynamic client
// registration, authorization-code+PKCE issuance, token exchange and
// revocation, scoped to "tag:<name>" scopes.
type Server struct {
	cfg Config

	clients  *fileStore[ClientRegistration]
	requests *fileStore[AuthRequest]
	codes    *fileStore[AuthorizationCode]
	sessions *fileStore[Session]

	stopSweep chan struct{}
}

var _ transport.Validator = (*Server)(nil)

// NewServer constructs a Server, creating its storage subdirectories.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if cfg.KnownTags == nil {
		cfg.KnownTags = func() map[string]struct{} { return nil }
	}

	clients, err := newFileStore[ClientRegistration](filepath.Join(cfg.StorageDir, "clients"), clientPrefix)
	if err != nil {
		return nil, err
	}
	requests, err := newFileStore[AuthRequest](filepath.Join(cfg.StorageDir, "requests"), requestPrefix)
	if err != nil {
		return nil, err
	}
	codes, err := newFileStore[AuthorizationCode](filepath.Join(cfg.StorageDir, "codes"), codePrefix)
	if err != nil {
		return nil, err
	}
	sessions, err := newFileStore[Session](filepath.Join(cfg.StorageDir, "sessions"), tokenPrefix)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		clients:   clients,
		requests:  requests,
		codes:     codes,
		sessions:  sessions,
		stopSweep: make(chan struct{}),
	}
	go s.sweepLoop()
	return s, nil
}

// Stop halts the background cleanup sweep. Safe to call once.
func (s *Server) Stop() {
	close(s.stopSweep)
}

func (s *Server) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.requests.sweep()
			s.codes.sweep()
			s.sessions.sweep()
		}
	}
}

// RegisterClient implements POST /register.
func (s *Server) RegisterClient(name string, redirectURIs []string) (ClientRegistration, error) {
	if len(redirectURIs) == 0 {
		return ClientRegistration{}, newAuthError("invalid_client_metadata", "redirect_uris is required")
	}
	id, err := newID("")
	if err != nil {
		return ClientRegistration{}, err
	}
	secret, err := newID("")
	if err != nil {
		return ClientRegistration{}, err
	}
	reg := ClientRegistration{
		ClientID:     id,
		ClientSecret: secret,
		ClientName:   name,
		RedirectURIs: redirectURIs,
		CreatedAt:    time.Now(),
	}
	if err := s.clients.Put(id, reg); err != nil {
		return ClientRegistration{}, err
	}
	return reg, nil
}

// AuthorizeParams is the validated query string of GET /authorize.
type AuthorizeParams struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	Scope               string
	Resource            string
}

// Authorize validates an incoming /authorize request and, when consent is
// not required, immediately approves it. It returns the pending AuthRequest
// either way; callers render a consent view around it unless cfg.AutoApprove
// caused immediate approval, in which case redirectCode is also set.
func (s *Server) Authorize(p AuthorizeParams) (req AuthRequest, redirectCode string, err error) {
	client, ok := s.clients.Get(p.ClientID)
	if !ok {
		return AuthRequest{}, "", errInvalidClient
	}
	if !containsURI(client.RedirectURIs, p.RedirectURI) {
		return AuthRequest{}, "", newAuthError("invalid_request", "redirect_uri does not match a registered URI")
	}
	if p.ResponseType != "code" {
		return AuthRequest{}, "", newAuthError("unsupported_response_type", "only response_type=code is supported")
	}
	if p.CodeChallenge == "" || p.CodeChallengeMethod != "S256" {
		return AuthRequest{}, "", newAuthError("invalid_request", "PKCE code_challenge with S256 is required")
	}

	scopes := parseScopeString(p.Scope)
	if err := validateScopes(scopes, s.cfg.KnownTags()); err != nil {
		return AuthRequest{}, "", err
	}

	id, err := newID("")
	if err != nil {
		return AuthRequest{}, "", err
	}
	ar := AuthRequest{
		ID:                  id,
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		State:               p.State,
		Scopes:              scopes,
		Resource:            p.Resource,
		ExpiresAt:           time.Now().Add(DefaultAuthRequestTTL),
	}
	if err := s.requests.Put(id, ar); err != nil {
		return AuthRequest{}, "", err
	}

	if s.cfg.AutoApprove {
		code, err := s.approve(ar)
		if err != nil {
			return AuthRequest{}, "", err
		}
		return ar, code, nil
	}
	return ar, "", nil
}

// CompleteConsent approves or denies a pending AuthRequest previously
// returned by Authorize, identified by its id. On approval it returns the
// authorization code to redirect the client with; the AuthRequest is
// deleted either way.
func (s *Server) CompleteConsent(requestID string, approved bool) (code string, ar AuthRequest, err error) {
	ar, ok := s.requests.Get(requestID)
	if !ok {
		return "", AuthRequest{}, newAuthError("invalid_request", "authorization request not found or expired")
	}
	if !approved {
		s.requests.Delete(requestID)
		return "", ar, newAuthError("access_denied", "user denied the authorization request")
	}
	code, err = s.approve(ar)
	return code, ar, err
}

func (s *Server) approve(ar AuthRequest) (string, error) {
	id, err := newID("")
	if err != nil {
		return "", err
	}
	ac := AuthorizationCode{
		Code:                id,
		ClientID:            ar.ClientID,
		RedirectURI:         ar.RedirectURI,
		CodeChallenge:       ar.CodeChallenge,
		CodeChallengeMethod: ar.CodeChallengeMethod,
		Scopes:              ar.Scopes,
		Resource:            ar.Resource,
		ExpiresAt:           time.Now().Add(DefaultCodeTTL),
	}
	if err := s.codes.Put(id, ac); err != nil {
		return "", err
	}
	s.requests.Delete(ar.ID)
	return id, nil
}

// TokenResponse is the JSON body of a successful POST /token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// ExchangeCode implements the authorization_code grant of POST /token.
func (s *Server) ExchangeCode(clientID, redirectURI, code, verifier string) (TokenResponse, error) {
	ac, ok := s.codes.Get(code)
	if !ok {
		return TokenResponse{}, errInvalidGrant
	}
	// One-shot regardless of outcome below: a failed verification must not
	// leave the code replayable.
	s.codes.Delete(code)

	if ac.ClientID != clientID || ac.RedirectURI != redirectURI {
		return TokenResponse{}, errInvalidGrant
	}
	if !pkgoauth.VerifyPKCE(verifier, ac.CodeChallenge, ac.CodeChallengeMethod) {
		return TokenResponse{}, errInvalidGrant
	}

	return s.issueToken(ac.ClientID, ac.Scopes, ac.Resource)
}

// RefreshToken implements the refresh_token grant of POST /token.
func (s *Server) RefreshToken(clientID, refreshToken string) (TokenResponse, error) {
	for id, sess := range s.sessions.All() {
		if sess.RefreshToken == refreshToken {
			if sess.ClientID != clientID {
				return TokenResponse{}, errInvalidGrant
			}
			s.sessions.Delete(id)
			return s.issueToken(sess.ClientID, sess.Scopes, sess.Resource)
		}
	}
	return TokenResponse{}, errInvalidGrant
}

func (s *Server) issueToken(clientID string, scopes []string, resource string) (TokenResponse, error) {
	accessID, err := newID("")
	if err != nil {
		return TokenResponse{}, err
	}
	refreshID, err := newID("")
	if err != nil {
		return TokenResponse{}, err
	}

	now := time.Now()
	sess := Session{
		AccessToken:  accessID,
		RefreshToken: refreshID,
		ClientID:     clientID,
		Scopes:       scopes,
		Resource:     resource,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.AccessTokenTTL),
	}
	if err := s.sessions.Put(accessID, sess); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  tokenPrefix + accessID,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refreshID,
		Scope:        joinScopes(scopes),
	}, nil
}

// Revoke implements POST /revoke: deletes the Session bound to token, if
// any. Always succeeds per RFC 7009, even for an unknown token.
func (s *Server) Revoke(token string) {
	id := strings.TrimPrefix(token, tokenPrefix)
	s.sessions.Delete(id)
}

// ValidateToken implements transport.Validator.
func (s *Server) ValidateToken(_ context.Context, token string) (transport.TokenInfo, error) {
	id := strings.TrimPrefix(token, tokenPrefix)
	sess, ok := s.sessions.Get(id)
	if !ok {
		return transport.TokenInfo{}, errInvalidToken
	}
	return transport.TokenInfo{ClientID: sess.ClientID, Tags: sess.TagScopes()}, nil
}

func containsURI(uris []string, target string) bool {
	for _, u := range uris {
		if u == target {
			return true
		}
	}
	return false
}
