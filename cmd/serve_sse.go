package cmd

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/server"
)

// runSSEServer serves MCP over Server-Sent Events. The SSE and message
// endpoints share the listener with /events and the health endpoints.
func runSSEServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, config ServeConfig, allowedOrigins []string) error {
	sseServer := mcpserver.NewSSEServer(mcpSrv,
		mcpserver.WithSSEEndpoint(config.SSEEndpoint),
		mcpserver.WithMessageEndpoint(config.MessageEndpoint),
	)

	handler := server.NewHTTPHandler(sc, server.HTTPConfig{
		Routes: map[string]http.Handler{
			config.SSEEndpoint:     sseServer,
			config.MessageEndpoint: sseServer,
		},
		AllowedOrigins: allowedOrigins,
	})

	sc.Logger().Info("SSE server starting",
		"addr", config.HTTPAddr,
		"sse_endpoint", config.SSEEndpoint,
		"message_endpoint", config.MessageEndpoint)

	return runHTTPServer(ctx, sc, handler, config, func(shutdownCtx context.Context) {
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			sc.Logger().Warn("Error closing SSE sessions", logging.Err(err))
		}
	})
}
