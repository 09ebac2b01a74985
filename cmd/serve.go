package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/giantswarm/kubedeck/internal/config"
	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/instrumentation"
	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/registry"
	"github.com/giantswarm/kubedeck/internal/server"
	"github.com/giantswarm/kubedeck/internal/supervisor"
	"github.com/giantswarm/kubedeck/internal/tools/cluster"
	"github.com/giantswarm/kubedeck/internal/tools/dashboard"
	"github.com/giantswarm/kubedeck/internal/tools/pod"
	"github.com/giantswarm/kubedeck/internal/vault"
)

// Transport type constants for the MCP server.
const (
	transportStdio          = "stdio"
	transportSSE            = "sse"
	transportStreamableHTTP = "streamable-http"
)

// ServeConfig holds the transport settings of the serve command. Everything
// else comes from config.Config.
type ServeConfig struct {
	Transport       string
	HTTPAddr        string
	SSEEndpoint     string
	MessageEndpoint string
	HTTPEndpoint    string
	Metrics         MetricsServeConfig
}

// MetricsServeConfig configures the dedicated metrics listener.
type MetricsServeConfig struct {
	Enabled bool
	Addr    string
}

// Validate checks the transport settings.
func (c ServeConfig) Validate() error {
	switch c.Transport {
	case transportStdio:
		return nil
	case transportSSE:
		if c.SSEEndpoint == "" || c.MessageEndpoint == "" {
			return fmt.Errorf("--sse-endpoint and --message-endpoint are required for the %s transport", transportSSE)
		}
		if c.SSEEndpoint == c.MessageEndpoint {
			return fmt.Errorf("--sse-endpoint and --message-endpoint must differ, both are %q", c.SSEEndpoint)
		}
	case transportStreamableHTTP:
		if c.HTTPEndpoint == "" {
			return fmt.Errorf("--http-endpoint is required for the %s transport", transportStreamableHTTP)
		}
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s, %s)",
			c.Transport, transportStdio, transportSSE, transportStreamableHTTP)
	}

	if c.HTTPAddr == "" {
		return fmt.Errorf("--http-addr is required for the %s transport", c.Transport)
	}
	if c.HTTPEndpoint == events.DefaultEventsPath || c.SSEEndpoint == events.DefaultEventsPath || c.MessageEndpoint == events.DefaultEventsPath {
		return fmt.Errorf("%s is reserved for the event channel", events.DefaultEventsPath)
	}
	return nil
}

// isHTTP reports whether the transport listens on HTTP.
func (c ServeConfig) isHTTP() bool {
	return c.Transport == transportSSE || c.Transport == transportStreamableHTTP
}

// newServeCmd creates the Cobra command for starting the MCP server.
func newServeCmd() *cobra.Command {
	var serveConfig ServeConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kubedeck MCP server",
		Long: `Start the kubedeck MCP server. It exposes the cluster registry, pod
listings, cluster dashboards and live pod watch and log tail sessions as MCP
tools.

Supports multiple transport types:
  - stdio: Standard input/output (default). Session events are sent as MCP
    notifications.
  - sse: Server-Sent Events over HTTP. Session events are also broadcast on
    the /events websocket.
  - streamable-http: Streamable HTTP transport, with the /events websocket.

Instrumentation is configured through the environment:
  - INSTRUMENTATION_ENABLED: enable metrics and tracing (default: false)
  - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
  - TRACING_EXPORTER: otlp, stdout or none (default: none)
  - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP collector endpoint`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := serveConfig.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, serveConfig)
		},
	}

	flags := cmd.Flags()

	// Configuration keys, see config.FlagKeys.
	flags.Bool("read-only", false, "Block tools that modify cluster state, such as delete_pod")
	flags.Duration("client-timeout", k8s.DefaultTimeout, "Timeout for building a cluster client")
	flags.Bool("connectivity-check", false, "Probe a cluster's API server before caching its client")
	flags.StringSlice("allowed-origins", nil, "Origins allowed to open the /events websocket and send CORS requests (scheme://host or *)")

	// Transport flags
	flags.StringVar(&serveConfig.Transport, "transport", transportStdio, "Transport type: stdio, sse, or streamable-http")
	flags.StringVar(&serveConfig.HTTPAddr, "http-addr", ":8080", "HTTP server address (for sse and streamable-http transports)")
	flags.StringVar(&serveConfig.SSEEndpoint, "sse-endpoint", "/sse", "SSE endpoint path (for sse transport)")
	flags.StringVar(&serveConfig.MessageEndpoint, "message-endpoint", "/message", "Message endpoint path (for sse transport)")
	flags.StringVar(&serveConfig.HTTPEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http transport)")

	// Metrics server flags
	flags.BoolVar(&serveConfig.Metrics.Enabled, "metrics-enabled", true, "Serve Prometheus metrics on a dedicated listener when instrumentation is enabled")
	flags.StringVar(&serveConfig.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address")

	return cmd
}

// runServe builds every component, registers the tools and runs the selected
// transport until ctx is cancelled or a termination signal arrives.
func runServe(ctx context.Context, cfg *config.Config, serveConfig ServeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol on stdio, so logs always go to stderr or
	// the log file.
	logger, logCloser, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	if cfg.File != "" {
		logger.Info("Loaded configuration", logging.Path(cfg.File))
	}

	instrumentationConfig := instrumentation.DefaultConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	provider, err := instrumentation.NewProvider(ctx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error shutting down instrumentation", logging.Err(err))
		}
	}()
	if provider.Enabled() {
		logger.Info("Instrumentation enabled",
			"metrics_exporter", instrumentationConfig.MetricsExporter,
			"tracing_exporter", instrumentationConfig.TracingExporter)
	}
	metrics := provider.Metrics()

	mcpSrv := mcpserver.NewMCPServer("kubedeck", rootCmd.Version,
		mcpserver.WithToolCapabilities(true),
	)

	var hub *events.Hub
	if serveConfig.isHTTP() {
		hub = events.NewHub(
			events.WithHubConfig(cfg.HubConfig()),
			events.WithHubLogger(logger),
			events.WithHubMetrics(metrics),
		)
	}

	sc, err := buildServerContext(ctx, cfg, logger, provider, mcpSrv, hub)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := sc.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during server context shutdown", logging.Err(err))
		}
	}()

	if err := registerTools(mcpSrv, sc); err != nil {
		return err
	}

	logger.Info("Starting kubedeck",
		"version", rootCmd.Version,
		"transport", serveConfig.Transport,
		"read_only", cfg.ReadOnly,
		"vault", cfg.VaultDir,
		"database", cfg.DatabasePath)

	switch serveConfig.Transport {
	case transportStdio:
		return runStdioServer(ctx, mcpSrv, logger)
	case transportSSE:
		return runSSEServer(ctx, mcpSrv, sc, serveConfig, cfg.Events.AllowedOrigins)
	case transportStreamableHTTP:
		return runStreamableHTTPServer(ctx, mcpSrv, sc, serveConfig, cfg.Events.AllowedOrigins)
	default:
		return fmt.Errorf("unsupported transport type: %s", serveConfig.Transport)
	}
}

// buildServerContext opens the vault and the registry and wires the client
// resolver and the session supervisor around them. Session events go to
// every MCP client and, when hub is set, to the websocket clients.
func buildServerContext(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	provider *instrumentation.Provider,
	sender events.NotificationSender,
	hub *events.Hub,
) (*server.ServerContext, error) {
	metrics := provider.Metrics()

	v, err := vault.New(cfg.VaultDir,
		vault.WithLogger(logger),
		vault.WithMaxDiscoveryDepth(cfg.Discovery.MaxDepth),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential vault: %w", err)
	}

	store, err := registry.Open(ctx, cfg.DatabasePath, v,
		registry.WithLogger(logger),
		registry.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open cluster registry: %w", err)
	}

	cache := k8s.NewClientCache(
		k8s.WithCacheConfig(cfg.CacheConfig()),
		k8s.WithCacheLogger(logger),
		k8s.WithCacheMetrics(metrics),
	)
	resolver := k8s.NewResolver(store, v,
		k8s.WithResolverLogger(logger),
		k8s.WithClientCache(cache),
		k8s.WithConnectivityConfig(cfg.ConnectivityConfig()),
		k8s.WithConnectivityCheck(cfg.Client.ConnectivityCheck),
		k8s.WithTimeout(cfg.Client.Timeout),
	)

	var emitter events.Emitter = events.NewMCPNotifier(sender)
	if hub != nil {
		emitter = events.Multi{hub, emitter}
	}

	sup := supervisor.New(resolver, emitter,
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(metrics),
		supervisor.WithToucher(store),
	)

	opts := []server.Option{
		server.WithVault(v),
		server.WithRegistry(store),
		server.WithResolver(resolver),
		server.WithSupervisor(sup),
		server.WithLogger(logger),
		server.WithConfig(&server.Config{
			ServerName: "kubedeck",
			Version:    rootCmd.Version,
			ReadOnly:   cfg.ReadOnly,
			LegacyDir:  cfg.LegacyDir,
		}),
		server.WithReadOnly(cfg.ReadOnly),
		server.WithInstrumentationProvider(provider),
	}
	if hub != nil {
		opts = append(opts, server.WithHub(hub))
	}

	sc, err := server.NewServerContext(ctx, opts...)
	if err != nil {
		closeAll(logger, resolver, store)
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	return sc, nil
}

func registerTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := cluster.RegisterClusterTools(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register cluster tools: %w", err)
	}
	if err := pod.RegisterPodTools(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register pod tools: %w", err)
	}
	if err := dashboard.RegisterDashboardTools(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register dashboard tools: %w", err)
	}
	return nil
}

func closeAll(logger *slog.Logger, closers ...io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("Error releasing resource", logging.Err(err))
		}
	}
}
