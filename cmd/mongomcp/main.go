// mongomcp exposes a MongoDB deployment to MCP clients.
//
// Query results are read through a bounded cursor drain so a single tool
// call can never return more than the configured byte or document budget.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitriimaksimovdevelop/mongomcp/internal/config"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/mcp"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/output"
)

var (
	version = "0.1.0"
)

// rootFlags holds the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath           string
	connectionString     string
	readOnly             bool
	disabledTools        string
	maxDocumentsPerQuery string
	maxBytesPerQuery     string
	transport            string
	httpHost             string
	httpPort             int
	toolTimeout          time.Duration
	logPath              string
	verbose              bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f rootFlags

	rootCmd := &cobra.Command{
		Use:   "mongomcp",
		Short: "MongoDB server for the Model Context Protocol",
		Long: `mongomcp lets AI agents query and manage a MongoDB deployment over the
Model Context Protocol (MCP).

Settings are read from built-in defaults, then an optional YAML file
(--config), then MDB_MCP_* environment variables, then flags.

Reads are bounded: results stop at a document boundary once the
response would exceed maxBytesPerQuery, maxDocumentsPerQuery or the
caller's responseBytesLimit.`,
		Version:      version,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Path to a YAML config file")
	pf.StringVar(&f.connectionString, "connection-string", "", "MongoDB connection string")
	pf.BoolVar(&f.readOnly, "read-only", false, "Only register connect, metadata and read tools")
	pf.StringVar(&f.disabledTools, "disabled-tools", "", "Tool names or kinds to disable (comma-separated)")
	pf.StringVar(&f.maxDocumentsPerQuery, "max-documents-per-query", "", "Maximum documents returned by one read")
	pf.StringVar(&f.maxBytesPerQuery, "max-bytes-per-query", "", "Maximum bytes returned by one read")
	pf.StringVar(&f.transport, "transport", "", "Transport: stdio or http")
	pf.StringVar(&f.httpHost, "http-host", "", "Listen host for the http transport")
	pf.IntVar(&f.httpPort, "http-port", 0, "Listen port for the http transport")
	pf.DurationVar(&f.toolTimeout, "tool-timeout", 0, "Timeout for a single tool call")
	pf.StringVar(&f.logPath, "log-path", "", "Write logs to this file instead of stderr")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")

	serveCmd := newServeCmd(&f)
	rootCmd.RunE = serveCmd.RunE

	// --- tools command ---
	var toolsOutput string
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the server would register",
		Long:  "Print the tool catalog for the effective configuration as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			return output.WriteJSON(mcp.Describe(cfg), toolsOutput)
		},
	}
	toolsCmd.Flags().StringVarP(&toolsOutput, "output", "o", "-", "Output file path (- for stdout)")

	// --- version command ---
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mongomcp %s\n", version)
		},
	}

	rootCmd.AddCommand(serveCmd, toolsCmd, versionCmd)
	return rootCmd
}

// loadConfig layers defaults, the config file, the environment and the
// flags the user actually set.
func loadConfig(cmd *cobra.Command, f *rootFlags) (config.Config, error) {
	return config.Load(f.configPath, func(cfg *config.Config) {
		applyFlags(cmd, f, cfg)
	})
}

func applyFlags(cmd *cobra.Command, f *rootFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("connection-string") {
		cfg.ConnectionString = f.connectionString
	}
	if changed("read-only") {
		cfg.ReadOnly = f.readOnly
	}
	if changed("disabled-tools") {
		cfg.DisabledTools = config.SplitList(f.disabledTools)
	}
	if changed("max-documents-per-query") {
		cfg.MaxDocumentsPerQuery = f.maxDocumentsPerQuery
	}
	if changed("max-bytes-per-query") {
		cfg.MaxBytesPerQuery = f.maxBytesPerQuery
	}
	if changed("transport") {
		cfg.Transport = f.transport
	}
	if changed("http-host") {
		cfg.HTTPHost = f.httpHost
	}
	if changed("http-port") {
		cfg.HTTPPort = f.httpPort
	}
	if changed("tool-timeout") {
		cfg.ToolTimeout = f.toolTimeout
	}
	if changed("log-path") {
		cfg.LogPath = f.logPath
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
}
