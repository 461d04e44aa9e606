// Package config defines the immutable UpstreamDef model, its JSON file
// format, and change-diffing used to drive upstream reconfiguration.
//
// Configuration parsing of the surrounding CLI/app-consolidator surface is
// out of scope: this package only knows how to turn one JSON document into
// a validated snapshot of upstream definitions and compute diffs between
// snapshots.
package config

import "time"

// UpstreamKind identifies the transport used to reach an upstream MCP server.
type UpstreamKind string

const (
	KindStdio UpstreamKind = "stdio"
	KindHTTP  UpstreamKind = "http"
	KindSSE   UpstreamKind = "sse"
)

// RestartPolicy governs subprocess respawn behavior for stdio upstreams
// whose transport closes unexpectedly. It is independent of the
// connect-retry budget (see internal/upstream).
type RestartPolicy struct {
	OnExit      bool `json:"restartOnExit"`
	MaxRestarts int  `json:"maxRestarts"` // 0 means unlimited when OnExit is true
	DelayMs     int  `json:"restartDelay"`
}

// OAuthHint carries optional static OAuth client configuration for an
// upstream that itself requires authorization. The proxy stores whatever
// token it receives from this upstream's own IdP opaquely; it never acts as
// a client to a third-party IdP beyond that storage role.
type OAuthHint struct {
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// UpstreamDef is an immutable definition of one configured upstream MCP
// server. Values are never mutated in place; reconfiguration replaces the
// whole UpstreamDef and is expressed as a Diff.
type UpstreamDef struct {
	Name     string       `json:"-"` // the map key in the config file
	Kind     UpstreamKind `json:"type"`
	Disabled bool         `json:"disabled"`
	Tags     []string     `json:"tags,omitempty"`

	// stdio
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`

	// http / sse
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	TimeoutSeconds int            `json:"timeout,omitempty"`
	Restart        *RestartPolicy `json:"-"` // flattened below
	RestartOnExit  bool           `json:"restartOnExit,omitempty"`
	MaxRestarts    int            `json:"maxRestarts,omitempty"`
	RestartDelayMs int            `json:"restartDelay,omitempty"`

	OAuth *OAuthHint `json:"oauth,omitempty"`
}

// RestartPolicyOf returns the effective restart policy, defaulting to no
// restart for non-stdio upstreams or when unset.
func (d UpstreamDef) RestartPolicyOf() RestartPolicy {
	if d.Kind != KindStdio {
		return RestartPolicy{}
	}
	return RestartPolicy{
		OnExit:      d.RestartOnExit,
		MaxRestarts: d.MaxRestarts,
		DelayMs:     d.RestartDelayMs,
	}
}

// Timeout returns the configured per-request timeout, defaulting to 30s.
func (d UpstreamDef) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// TagSet returns the upstream's tags as a membership set.
func (d UpstreamDef) TagSet() map[string]struct{} {
	set := make(map[string]struct{}, len(d.Tags))
	for _, t := range d.Tags {
		set[t] = struct{}{}
	}
	return set
}

// Snapshot is an immutable, fully-validated set of upstream definitions as
// of one config load or reload.
type Snapshot struct {
	Upstreams map[string]UpstreamDef
	LoadedAt  time.Time
}

// Get returns the definition for name, if present.
func (s Snapshot) Get(name string) (UpstreamDef, bool) {
	d, ok := s.Upstreams[name]
	return d, ok
}
