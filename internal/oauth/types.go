package oauth

import "time"

// ClientRegistration is the persisted result of POST /register (RFC 7591
// dynamic client registration), scoped down to what this server actually
// validates at /authorize and /token.
type ClientRegistration struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	ClientName   string    `json:"client_name,omitempty"`
	RedirectURIs []string  `json:"redirect_uris"`
	CreatedAt    time.Time `json:"created_at"`
}

// expired is always false: client registrations don't expire on their own,
// only on explicit removal (not currently exposed as an endpoint).
func (ClientRegistration) expired(time.Time) bool { return false }

// AuthRequest is the short-lived, pre-consent record created at GET
// /authorize and consumed (deleted) once the caller approves or denies the
// request. It exists so a rendered consent page can be POSTed back without
// re-transmitting the PKCE challenge or scope list.
type AuthRequest struct {
	ID                  string    `json:"id"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	State               string    `json:"state"`
	Scopes              []string  `json:"scopes"`
	Resource            string    `json:"resource,omitempty"`
	ExpiresAt           time.Time `json:"expires_at"`
}

func (a AuthRequest) expired(now time.Time) bool { return now.After(a.ExpiresAt) }

// AuthorizationCode is issued once an AuthRequest is approved. It is
// one-shot: ExchangeCode deletes the record on first use, so a repeated
// /token call with the same code fails with invalid_grant because the
// record is simply gone.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	Scopes              []string  `json:"scopes"`
	Resource            string    `json:"resource,omitempty"`
	ExpiresAt           time.Time `json:"expires_at"`
}

func (c AuthorizationCode) expired(now time.Time) bool { return now.After(c.ExpiresAt) }

// Session is the record a bearer access token resolves to. Scopes are the
// authoritative tag set for every request presenting this token.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ClientID     string    `json:"client_id"`
	Scopes       []string  `json:"scopes"`
	Resource     string    `json:"resource,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s Session) expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// TagScopes returns the "tag:<name>" scopes with the prefix stripped, i.e.
// the set this session's bearer token authorizes.
func (s Session) TagScopes() map[string]struct{} {
	tags := make(map[string]struct{}, len(s.Scopes))
	for _, sc := range s.Scopes {
		if name, ok := tagScopeName(sc); ok {
			tags[name] = struct{}{}
		}
	}
	return tags
}
