package oauth

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/giantswarm/1mcp/internal/transport"
)

// RegisterRoutes mounts the authorization core's endpoints on mux, rate
// limited per-IP the same way the teacher's OAuth HTTP server protects its
// own register/authorize/token endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux, limiter *transport.IPRateLimiter) {
	wrap := func(h http.HandlerFunc) http.Handler {
		return limiter.Middleware(h)
	}

	mux.Handle("POST /register", wrap(s.handleRegister))
	mux.Handle("GET /authorize", wrap(s.handleAuthorize))
	mux.Handle("POST /authorize/consent", wrap(s.handleConsent))
	mux.Handle("POST /token", wrap(s.handleToken))
	mux.Handle("POST /revoke", wrap(s.handleRevoke))
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", s.handleMetadata)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metadata())
}

type registerRequest struct {
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, newAuthError("invalid_request", "malformed JSON body"))
		return
	}
	reg, err := s.RegisterClient(req.ClientName, req.RedirectURIs)
	if err != nil {
		writeAuthError(w, asAuthError(err))
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := AuthorizeParams{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		State:               q.Get("state"),
		Scope:               q.Get("scope"),
		Resource:            q.Get("resource"),
	}

	ar, code, err := s.Authorize(p)
	if err != nil {
		writeAuthError(w, asAuthError(err))
		return
	}
	if code != "" {
		redirectWithCode(w, r, ar.RedirectURI, code, ar.State)
		return
	}

	client, _ := s.clients.Get(ar.ClientID)
	renderConsent(w, consentView{ClientName: client.ClientName, Scopes: ar.Scopes, RequestID: ar.ID})
}

func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAuthError(w, newAuthError("invalid_request", "malformed form body"))
		return
	}
	requestID := r.PostForm.Get("request_id")
	approved := r.PostForm.Get("decision") == "approve"

	code, ar, err := s.CompleteConsent(requestID, approved)
	if err != nil {
		if ar.RedirectURI != "" {
			redirectWithError(w, r, ar.RedirectURI, asAuthError(err), ar.State)
			return
		}
		writeAuthError(w, asAuthError(err))
		return
	}
	redirectWithCode(w, r, ar.RedirectURI, code, ar.State)
}

type tokenRequest struct {
	GrantType    string
	ClientID     string
	RedirectURI  string
	Code         string
	CodeVerifier string
	RefreshToken string
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAuthError(w, newAuthError("invalid_request", "malformed form body"))
		return
	}
	req := tokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		ClientID:     r.PostForm.Get("client_id"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		Code:         r.PostForm.Get("code"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
	}

	var (
		resp TokenResponse
		err  error
	)
	switch req.GrantType {
	case "authorization_code":
		resp, err = s.ExchangeCode(req.ClientID, req.RedirectURI, req.Code, req.CodeVerifier)
	case "refresh_token":
		resp, err = s.RefreshToken(req.ClientID, req.RefreshToken)
	default:
		err = newAuthError("unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
	if err != nil {
		writeAuthError(w, asAuthError(err))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAuthError(w, newAuthError("invalid_request", "malformed form body"))
		return
	}
	s.Revoke(r.PostForm.Get("token"))
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAuthError(w http.ResponseWriter, err *AuthError) {
	writeJSON(w, statusFor(err), map[string]string{
		"error":             err.Code,
		"error_description": err.Description,
	})
}

// mustParseRedirect parses a redirect_uri already checked against a
// registered URI at Authorize time, so a parse failure here would indicate a
// corrupted stored record rather than attacker-controlled input.
func mustParseRedirect(redirectURI string) *url.URL {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return &url.URL{}
	}
	return u
}

func redirectWithCode(w http.ResponseWriter, r *http.Request, redirectURI, code, state string) {
	u := mustParseRedirect(redirectURI)
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI string, err *AuthError, state string) {
	u := mustParseRedirect(redirectURI)
	q := u.Query()
	q.Set("error", err.Code)
	q.Set("error_description", err.Description)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}
