package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for the 1mcpd binary.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the entry point when 1mcpd is invoked without a subcommand,
// which runs serve directly — the single documented subcommand, "serve",
// only exists to let it be named explicitly in scripts and systemd units.
var rootCmd = &cobra.Command{
	Use:   "1mcpd",
	Short: "Aggregate multiple MCP servers behind a single proxy endpoint",
	Long: `1mcpd connects to a set of configured upstream MCP servers and exposes
their tools, resources, and prompts through one aggregated MCP endpoint,
tag-scoped per client session.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command, exiting the process with a non-zero code
// on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "1mcpd version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	bindServeFlags(rootCmd)
	rootCmd.AddCommand(serveCmd)
}
