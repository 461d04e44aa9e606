package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/1mcp/internal/app"
)

var (
	flagConfig          string
	flagTransport       string
	flagPort            int
	flagHost            string
	flagTrustProxy      int
	flagEnableAuth      bool
	flagLogLevel        string
	flagLogFile         string
	flagHealthInfoLevel string
)

// serveCmd is the only documented subcommand: running 1mcpd with no
// subcommand at all does exactly the same thing, via rootCmd's own RunE.
var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Start the proxy (same as running 1mcpd with no subcommand)",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runServe,
}

// bindServeFlags registers every persistent flag on cmd, each one also
// readable from its ONE_MCP_-prefixed environment variable when the flag
// itself is left at its default — mirroring the teacher's cobra+BindEnv
// convention without pulling in viper for what is otherwise a
// single-command CLI.
func bindServeFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&flagConfig, "config", envOr("CONFIG", ""), "path to the upstream servers JSON config file")
	cmd.PersistentFlags().StringVar(&flagTransport, "transport", envOr("TRANSPORT", "http"), `inbound transport: "stdio" or "http"`)
	cmd.PersistentFlags().IntVar(&flagPort, "port", envOrInt("PORT", 8090), "listen port for the http transport")
	cmd.PersistentFlags().StringVar(&flagHost, "host", envOr("HOST", "0.0.0.0"), "listen host for the http transport")
	cmd.PersistentFlags().IntVar(&flagTrustProxy, "trust-proxy", envOrInt("TRUST_PROXY", 0), "number of X-Forwarded-For hops to trust for client identification")
	cmd.PersistentFlags().BoolVar(&flagEnableAuth, "enable-auth", envOrBool("ENABLE_AUTH", false), "require OAuth 2.1 bearer tokens on the http transport")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", envOr("LOG_LEVEL", "info"), "debug, info, warn, or error")
	cmd.PersistentFlags().StringVar(&flagLogFile, "log-file", envOr("LOG_FILE", ""), "log file path (default stderr)")
	cmd.PersistentFlags().StringVar(&flagHealthInfoLevel, "health-info-level", envOr("HEALTH_INFO_LEVEL", "full"), "full, basic, or minimal detail in GET /health")
}

func envOr(suffix, fallback string) string {
	if v := os.Getenv("ONE_MCP_" + suffix); v != "" {
		return v
	}
	return fallback
}

func envOrInt(suffix string, fallback int) int {
	if v := os.Getenv("ONE_MCP_" + suffix); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrBool(suffix string, fallback bool) bool {
	if v := os.Getenv("ONE_MCP_" + suffix); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.Config{
		ConfigPath:         flagConfig,
		Transport:          flagTransport,
		Host:               flagHost,
		Port:               flagPort,
		TrustProxyHops:     flagTrustProxy,
		EnableAuth:         flagEnableAuth,
		LogLevel:           flagLogLevel,
		LogFile:            flagLogFile,
		HealthInfoLevel:    flagHealthInfoLevel,
		RateLimitPerSecond: 10,
		RateLimitBurst:     20,
	}
	if cfg.ConfigPath == "" {
		return fmt.Errorf("--config (or ONE_MCP_CONFIG) is required")
	}

	if cfg.EnableAuth {
		// Not exposed as their own flags per the documented CLI surface;
		// derived from the listen address, since this process is its own
		// issuer and has nowhere else to persist authorization state.
		cfg.BaseURL = fmt.Sprintf("http://%s", cfg.Addr())
		cfg.OAuthStorageDir = envOr("OAUTH_STORAGE_DIR", "./.1mcpd/oauth")
	}

	a, err := app.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			return fmt.Errorf("shutdown timed out")
		}
	}
}
