package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitriimaksimovdevelop/mongomcp/internal/events"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/mcp"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/mongodb"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/output"
)

const disconnectTimeout = 5 * time.Second

func newServeCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (default)",
		Long: `Starts a server implementing the Model Context Protocol (MCP).

With the stdio transport the client talks to the server over standard
input/output and logs go to stderr. With the http transport the server
listens for streamable HTTP requests on --http-host:--http-port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}

			log, closer, err := output.OpenLogger(cfg.LogPath, cfg.Verbose)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cache, err := events.NewCache(cfg.EventCacheSize)
			if err != nil {
				return fmt.Errorf("create event cache: %w", err)
			}

			session := mongodb.NewSession(mcp.ServerName + "/" + version)
			if cfg.ConnectionString != "" {
				// The connect tool can still establish a connection later.
				if err := session.Connect(ctx, cfg.ConnectionString); err != nil {
					log.Warn("initial connection failed", "error", err)
				}
			}
			defer func() {
				dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
				defer cancel()
				if err := session.Disconnect(dctx); err != nil {
					log.Warn("disconnect", "error", err)
				}
			}()

			log.Debug("starting server",
				"version", version,
				"transport", cfg.Transport,
				"read_only", cfg.ReadOnly,
				"disabled_tools", cfg.DisabledTools,
				"connected", session.Connected(),
			)
			srv := mcp.NewServer(version, cfg, session, cache, log)
			return srv.Start(ctx)
		},
	}
}
