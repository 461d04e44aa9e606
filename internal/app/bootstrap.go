package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/1mcp/internal/aggregator"
	"github.com/giantswarm/1mcp/internal/config"
	"github.com/giantswarm/1mcp/internal/health"
	"github.com/giantswarm/1mcp/internal/oauth"
	"github.com/giantswarm/1mcp/internal/router"
	"github.com/giantswarm/1mcp/internal/session"
	"github.com/giantswarm/1mcp/internal/transport"
	"github.com/giantswarm/1mcp/internal/upstream"
	"github.com/giantswarm/1mcp/pkg/logging"
)

// capabilityWatcher is the subset of internal/transport's unexported
// capabilitySyncer type this package needs, letting it hold the value
// transport.BuildMCPServer returns without importing an unexported type.
type capabilityWatcher interface {
	Watch(context.Context)
}

// App is the fully wired dependency graph for one running proxy instance.
// It owns every long-lived component and is responsible for starting and
// stopping them in the right order.
type App struct {
	cfg Config

	upstreams  *upstream.Manager
	aggregator *aggregator.Aggregator
	sessions   *session.Registry
	router     *router.Router
	mcpServer  *mcpserver.MCPServer
	syncer     capabilityWatcher
	oauthSrv   *oauth.Server
	health     *health.Checker
	watcher    *config.Watcher

	lastSnap config.Snapshot
}

// Bootstrap constructs every component in dependency order: config load,
// upstream manager, aggregator, session registry and router, inbound MCP
// server, authorization core, and health checker. It does not start
// serving; call Run for that.
func Bootstrap(cfg Config) (*App, error) {
	logOutput, err := openLogOutput(cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), logOutput)

	snap, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load initial config: %w", err)
	}

	a := &App{cfg: cfg, lastSnap: snap}

	a.upstreams = upstream.NewManager()
	if err := a.upstreams.Start(context.Background(), snap); err != nil {
		return nil, fmt.Errorf("start upstream manager: %w", err)
	}

	a.aggregator = aggregator.NewAggregator(a.upstreams, cfg.CoalesceWindow)

	a.sessions = session.NewRegistry(cfg.SessionTimeout, cfg.MaxSessions)
	a.router = router.New(a.aggregator, a.sessions)
	a.router.SetUpstreamTags(snap)

	a.mcpServer, a.syncer = transport.BuildMCPServer(a.router, a.aggregator)

	if cfg.EnableAuth {
		oauthSrv, err := oauth.NewServer(oauth.Config{
			StorageDir:  cfg.OAuthStorageDir,
			BaseURL:     cfg.BaseURL,
			AutoApprove: cfg.OAuthAutoApprove,
			KnownTags:   a.router.AllTags,
		})
		if err != nil {
			a.upstreams.Stop()
			return nil, fmt.Errorf("start authorization core: %w", err)
		}
		a.oauthSrv = oauthSrv
	}

	a.health = health.NewChecker(health.DetailLevel(cfg.HealthInfoLevel), a.upstreams.Snapshot)
	a.health.MarkConfigLoaded()

	a.watcher = config.NewWatcher(cfg.ConfigPath)
	a.watcher.OnSnapshot = a.reconcile
	a.watcher.OnError = a.health.RecordConfigError

	return a, nil
}

// openLogOutput resolves the configured log destination, defaulting to
// stderr so startup failures are visible even before a log file path is
// honored.
func openLogOutput(path string) (*os.File, error) {
	if path == "" {
		return os.Stderr, nil
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// reconcile applies a freshly reloaded config.Snapshot: the upstream
// manager is reconfigured against the diff against the previously applied
// snapshot and the router's tag universe is refreshed, then the
// config-loaded health flag is re-marked, clearing any previously recorded
// reload error.
func (a *App) reconcile(snap config.Snapshot) {
	diff := config.ComputeDiff(a.lastSnap, snap)
	a.upstreams.Reconfigure(diff)
	a.router.SetUpstreamTags(snap)
	a.lastSnap = snap
	a.health.MarkConfigLoaded()
}

// Run starts the aggregator and router, begins watching the config file,
// and serves the configured transport until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	a.aggregator.Start(ctx)
	a.health.MarkAggregatorStarted()

	a.router.Start(ctx)
	go a.syncer.Watch(ctx)

	go func() {
		if err := a.watcher.Run(ctx); err != nil {
			logging.Error("Bootstrap", err, "config watcher stopped")
		}
	}()

	defer a.shutdown()

	if a.cfg.Transport == "stdio" {
		return transport.ServeStdio(ctx, a.mcpServer, a.sessions)
	}

	return transport.Serve(ctx, transport.HTTPConfig{
		Addr:                a.cfg.Addr(),
		Router:              a.router,
		Aggregator:          a.aggregator,
		Sessions:            a.sessions,
		MCPServer:           a.mcpServer,
		HealthHandler:       a.healthHandler(),
		AuthHandler:         a.authHandler(),
		StatusSnapshot:      a.upstreams.Snapshot,
		AuthEnabled:         a.cfg.EnableAuth,
		ResourceMetadataURL: a.resourceMetadataURL(),
		Validator:           a.validator(),
		RateLimitPerSecond:  a.cfg.RateLimitPerSecond,
		RateLimitBurst:      a.cfg.RateLimitBurst,
		TrustProxyHops:      a.cfg.TrustProxyHops,
		EnableLegacySSE:     a.cfg.EnableLegacySSE,
	})
}

// healthHandler mounts the checker's three routes on their own mux so
// internal/transport can wire it under /health and /health/ unmodified.
func (a *App) healthHandler() http.Handler {
	mux := http.NewServeMux()
	a.health.RegisterRoutes(mux)
	return mux
}

// authHandler mounts the authorization core's own endpoints on their own
// mux, rate limited the same way the main /mcp endpoint is, independent of
// the request volume /mcp sees. Nil when auth is disabled.
func (a *App) authHandler() http.Handler {
	if a.oauthSrv == nil {
		return nil
	}
	mux := http.NewServeMux()
	limiter := transport.NewIPRateLimiter(a.cfg.RateLimitPerSecond, a.cfg.RateLimitBurst, a.cfg.TrustProxyHops)
	a.oauthSrv.RegisterRoutes(mux, limiter)
	return mux
}

// resourceMetadataURL returns BaseURL + "/.well-known/oauth-protected-resource"
// for the WWW-Authenticate challenge, empty when auth is disabled (no
// challenge is ever issued in that case). No handler in this process serves
// that path.
func (a *App) resourceMetadataURL() string {
	if !a.cfg.EnableAuth || a.cfg.BaseURL == "" {
		return ""
	}
	return a.cfg.BaseURL + "/.well-known/oauth-protected-resource"
}

// validator is nil when auth is disabled; AuthMiddleware never dereferences
// it in that case.
func (a *App) validator() transport.Validator {
	if a.oauthSrv == nil {
		return nil
	}
	return a.oauthSrv
}

// shutdown stops every component in reverse construction order.
func (a *App) shutdown() {
	a.router.Stop()
	a.aggregator.Stop()
	a.sessions.Stop()
	a.upstreams.Stop()
	if a.oauthSrv != nil {
		a.oauthSrv.Stop()
	}
}
