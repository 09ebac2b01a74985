package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/server"
)

// runStreamableHTTPServer serves MCP over the Streamable HTTP transport.
func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, config ServeConfig, allowedOrigins []string) error {
	mcpHandler := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(config.HTTPEndpoint),
	)

	handler := server.NewHTTPHandler(sc, server.HTTPConfig{
		Routes:         map[string]http.Handler{config.HTTPEndpoint: mcpHandler},
		AllowedOrigins: allowedOrigins,
	})

	sc.Logger().Info("Streamable HTTP server starting",
		"addr", config.HTTPAddr,
		"endpoint", config.HTTPEndpoint,
		"health_endpoints", []string{"/healthz", "/readyz"})

	return runHTTPServer(ctx, sc, handler, config, nil)
}

// runHTTPServer runs handler on config.HTTPAddr, plus the metrics listener
// when enabled, until ctx is done. beforeShutdown runs first on shutdown.
func runHTTPServer(ctx context.Context, sc *server.ServerContext, handler http.Handler, config ServeConfig, beforeShutdown func(context.Context)) error {
	logger := sc.Logger()

	var metricsServer *server.MetricsServer
	provider := sc.InstrumentationProvider()
	if config.Metrics.Enabled && provider != nil && provider.Enabled() {
		var err error
		metricsServer, err = startMetricsServer(sc, config.Metrics)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// WriteTimeout stays unset: SSE streams and /events are long-lived.
	httpServer := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()

		if beforeShutdown != nil {
			beforeShutdown(shutdownCtx)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Error shutting down metrics server", logging.Err(err))
			}
		}
		// Sessions end and websocket clients are closed before the listener,
		// http.Server.Shutdown does not wait for hijacked connections.
		if err := sc.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during server context shutdown", logging.Err(err))
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if metricsServer != nil {
			_ = metricsServer.Shutdown(context.Background())
		}
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		logger.Info("HTTP server stopped normally")
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

// startMetricsServer starts the dedicated metrics server on a separate port.
func startMetricsServer(sc *server.ServerContext, config MetricsServeConfig) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    config.Addr,
		Enabled:                 config.Enabled,
		InstrumentationProvider: sc.InstrumentationProvider(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	go func() {
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sc.Logger().Error("Metrics server error", logging.Err(err))
		}
	}()

	sc.Logger().Info("Metrics server started", "addr", metricsServer.Addr(), "endpoint", "/metrics")
	return metricsServer, nil
}
