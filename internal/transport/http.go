package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/1mcp/internal/aggregator"
	"github.com/giantswarm/1mcp/internal/router"
	"github.com/giantswarm/1mcp/internal/session"
	"github.com/giantswarm/1mcp/internal/upstream"
	"github.com/giantswarm/1mcp/pkg/logging"
)

// HTTPConfig wires every dependency the streamable HTTP and legacy SSE
// listeners need. HealthHandler is mounted at /health unmodified by this
// package's middleware chain (liveness/readiness must stay reachable even
// when every upstream is unavailable, so it is never behind the
// availability gate); it comes from internal/health via dependency
// injection rather than an import, keeping this package decoupled from the
// health package's own upstream.Manager/aggregator.Registry dependencies.
type HTTPConfig struct {
	Addr string

	Router        *router.Router
	Aggregator    *aggregator.Aggregator
	Sessions      *session.Registry
	MCPServer     *mcpserver.MCPServer
	HealthHandler http.Handler

	// AuthHandler, when non-nil, serves the authorization core's own HTTP
	// endpoints (/register, /authorize, /token, /revoke, the well-known
	// discovery document) unauthenticated and outside the availability
	// gate, the same way HealthHandler is mounted.
	AuthHandler http.Handler

	// StatusSnapshot backs the availability gate; normally upstream.Manager.Snapshot.
	StatusSnapshot func() map[string]upstream.Status

	AuthEnabled         bool
	ResourceMetadataURL string
	Validator           Validator

	RateLimitPerSecond float64
	RateLimitBurst     int
	TrustProxyHops     int

	EnableLegacySSE bool
}

// Serve starts the streamable HTTP listener (and, if enabled, the legacy
// SSE listener) on cfg.Addr, honoring systemd socket activation the same
// way the teacher's aggregator server does: when listeners are handed down
// by systemd, they are served directly and cfg.Addr is ignored.
func Serve(ctx context.Context, cfg HTTPConfig) error {
	limiter := NewIPRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, cfg.TrustProxyHops)
	go sweepLoop(ctx, limiter)

	mux := http.NewServeMux()
	if cfg.HealthHandler != nil {
		mux.Handle("/health", cfg.HealthHandler)
		mux.Handle("/health/", cfg.HealthHandler)
	}
	if cfg.AuthHandler != nil {
		mux.Handle("/", cfg.AuthHandler)
	}

	streamable := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
	mux.Handle("/mcp", chain(streamable,
		limiter.Middleware,
		AuthMiddleware(cfg.AuthEnabled, cfg.ResourceMetadataURL, cfg.Validator),
		StreamableSessionMiddleware(cfg.Sessions),
		cfg.availabilityMiddleware(),
	))

	if cfg.EnableLegacySSE {
		sse := mcpserver.NewSSEServer(cfg.MCPServer,
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/messages"),
		)
		mux.Handle("/sse", chain(sse,
			limiter.Middleware,
			AuthMiddleware(cfg.AuthEnabled, cfg.ResourceMetadataURL, cfg.Validator),
			SSESessionMiddleware(cfg.Sessions),
			cfg.availabilityMiddleware(),
		))
		// Message delivery for an already-open SSE connection: the session
		// was fixed at GET /sse time and travels via that connection's own
		// context, so only rate limiting applies here.
		mux.Handle("/messages", chain(sse, limiter.Middleware))
	}

	return serveMux(ctx, cfg.Addr, mux)
}

// availabilityMiddleware builds a gate bound to this config's router and
// status snapshot source. A nil StatusSnapshot degrades to "every admitted
// upstream looks unknown", which the gate treats as not-Ready — the
// conservative failure mode, never a silent bypass.
func (cfg HTTPConfig) availabilityMiddleware() func(http.Handler) http.Handler {
	snapshot := cfg.StatusSnapshot
	if snapshot == nil {
		snapshot = func() map[string]upstream.Status { return nil }
	}
	gate := NewAvailabilityGate(cfg.Router, snapshot)
	return gate.Middleware
}

// chain applies middleware in the order listed, so the first entry is the
// outermost wrapper (executes first on the way in).
func chain(base http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	h := base
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

func sweepLoop(ctx context.Context, limiter *IPRateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}

func serveMux(ctx context.Context, addr string, mux http.Handler) error {
	listenersWithNames, err := activation.ListenersWithNames()
	if err != nil {
		logging.Warn("Transport", "systemd socket activation lookup failed: %v", err)
	}

	var listeners []net.Listener
	for name, ls := range listenersWithNames {
		for _, l := range ls {
			logging.Info("Transport", "using systemd-activated listener %s", name)
			listeners = append(listeners, l)
		}
	}

	srv := &http.Server{Handler: mux}
	if len(listeners) == 0 {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		listeners = append(listeners, l)
	} else {
		srv.Addr = addr
	}

	errCh := make(chan error, len(listeners))
	for _, l := range listeners {
		go func(l net.Listener) {
			errCh <- srv.Serve(l)
		}(l)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
