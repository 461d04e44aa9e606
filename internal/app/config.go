package app

import (
	"strconv"
	"time"
)

// Config is the fully-resolved set of inputs cmd/serve.go gathers from
// cobra flags and ONE_MCP_-prefixed environment variables before calling
// Bootstrap. Every field has a zero value Bootstrap treats as "use the
// component's own default" rather than requiring callers to know those
// defaults themselves.
type Config struct {
	// ConfigPath is the JSON upstream-definitions file to load and watch.
	ConfigPath string

	// Transport selects the inbound transport: "stdio" or "http".
	Transport string
	Host      string
	Port      int

	// TrustProxyHops is how many X-Forwarded-For hops to trust when
	// identifying a client for rate limiting, matching internal/transport's
	// IPRateLimiter construction parameter.
	TrustProxyHops int

	EnableAuth      bool
	EnableLegacySSE bool

	// OAuthStorageDir holds the authorization core's client/code/session
	// records. Required when EnableAuth is true.
	OAuthStorageDir string
	// OAuthAutoApprove skips the consent screen, for development.
	OAuthAutoApprove bool
	BaseURL          string

	LogLevel string
	LogFile  string

	// HealthInfoLevel is "full", "basic", or "minimal" (internal/health.DetailLevel).
	HealthInfoLevel string

	RateLimitPerSecond float64
	RateLimitBurst     int

	SessionTimeout time.Duration
	MaxSessions    int

	// CoalesceWindow bounds how long the aggregator waits before emitting a
	// coalesced list_changed notification. Zero uses aggregator.DefaultCoalesceWindow.
	CoalesceWindow time.Duration
}

// Addr returns the listen address Host:Port resolves to, defaulting the
// host to all interfaces when unset.
func (c Config) Addr() string {
	host := c.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := c.Port
	if port == 0 {
		port = 8090
	}
	return host + ":" + strconv.Itoa(port)
}
