package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dmitriimaksimovdevelop/mongomcp/internal/config"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/events"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/output"
)

// ServerName is reported to clients during initialization.
const ServerName = "mongomcp"

// eventsURI is the resource listing recent tool calls.
const eventsURI = "debug://events"

// Server wraps the MCP server instance.
type Server struct {
	mcpServer *server.MCPServer
	cfg       config.Config
	log       *slog.Logger
}

// NewServer creates a new MCP server with the tools enabled by cfg.
func NewServer(version string, cfg config.Config, backend Backend, cache *events.Cache, log *slog.Logger) *Server {
	if log == nil {
		log = output.Discard()
	}
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithLogging(),
	)

	h := NewHandler(backend, cfg, cache, log)
	for _, t := range EnabledTools(h, cfg) {
		s.AddTool(t.Tool, h.instrument(t.Tool.Name, t.Handler))
	}
	registerResources(s, cache)

	return &Server{mcpServer: s, cfg: cfg, log: log}
}

// Start serves the configured transport until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	switch s.cfg.Transport {
	case config.TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		return s.serveStdio(ctx)
	}
}

func (s *Server) serveStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	stdioServer.SetErrorLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError))
	s.log.Info("serving MCP over stdio")
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serveHTTP(ctx context.Context) error {
	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	addr := s.cfg.HTTPAddr()

	go func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			s.log.Error("http shutdown", "error", err)
		}
	}()

	s.log.Info("serving MCP over streamable HTTP", "addr", addr)
	if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http transport: %w", err)
	}
	return nil
}

func registerResources(s *server.MCPServer, cache *events.Cache) {
	res := mcp.NewResource(eventsURI, "Recent tool calls",
		mcp.WithResourceDescription("The most recent tool invocations with their outcome, newest first."),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(res, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return readEvents(cache)
	})
}

func readEvents(cache *events.Cache) ([]mcp.ResourceContents, error) {
	recent := []events.Event{}
	if cache != nil {
		recent = cache.Recent()
	}
	data, err := json.MarshalIndent(recent, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      eventsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
