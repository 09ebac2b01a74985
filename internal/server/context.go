package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/instrumentation"
	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/registry"
	"github.com/giantswarm/kubedeck/internal/supervisor"
	"github.com/giantswarm/kubedeck/internal/vault"
)

// ServerContext encapsulates all dependencies needed by the MCP server and
// the tools it registers, and owns their shutdown.
type ServerContext struct {
	// Core dependencies
	vault      *vault.Vault
	registry   *registry.Store
	resolver   *k8s.Resolver
	supervisor *supervisor.Supervisor

	// hub is optional; the stdio transport runs without it.
	hub *events.Hub

	logger *slog.Logger
	config *Config

	instrumentationProvider *instrumentation.Provider

	// Context management
	ctx    context.Context
	cancel context.CancelFunc

	// Lifecycle management
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new ServerContext. Vault, registry, resolver and
// supervisor are required.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    serverCtx,
		cancel: cancel,
		config: NewDefaultConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}

	if err := sc.validate(); err != nil {
		cancel()
		return nil, err
	}

	return sc, nil
}

// Context returns the server context for cancellation and deadlines.
func (sc *ServerContext) Context() context.Context {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.ctx
}

// Vault returns the credential vault.
func (sc *ServerContext) Vault() *vault.Vault {
	return sc.vault
}

// Registry returns the cluster registry.
func (sc *ServerContext) Registry() *registry.Store {
	return sc.registry
}

// Resolver returns the cluster client resolver.
func (sc *ServerContext) Resolver() *k8s.Resolver {
	return sc.resolver
}

// Supervisor returns the session supervisor.
func (sc *ServerContext) Supervisor() *supervisor.Supervisor {
	return sc.supervisor
}

// Hub returns the websocket event hub, or nil when none is configured.
func (sc *ServerContext) Hub() *events.Hub {
	return sc.hub
}

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Config returns the server configuration.
func (sc *ServerContext) Config() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// ReadOnly reports whether tools that change cluster state are blocked.
func (sc *ServerContext) ReadOnly() bool {
	return sc.Config().ReadOnly
}

// InstrumentationProvider returns the OpenTelemetry provider, or nil.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	return sc.instrumentationProvider
}

// Metrics returns the metrics recorder, or nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	if !sc.instrumentationProvider.Enabled() {
		return nil
	}
	return sc.instrumentationProvider.Metrics()
}

// TouchCluster updates a cluster's last access time. Failures are logged and
// never fail the calling operation.
func (sc *ServerContext) TouchCluster(ctx context.Context, clusterID string) {
	if err := sc.registry.Touch(ctx, clusterID); err != nil {
		sc.logger.Warn("Could not update cluster access time",
			logging.ClusterID(clusterID),
			logging.Err(err))
	}
}

// Shutdown stops every session, closes the event channel and releases the
// registry and cached clients. It is safe to call more than once.
func (sc *ServerContext) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	sc.logger.Info("Shutting down server context")

	var errs []error
	if err := sc.supervisor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("supervisor: %w", err))
	}
	if sc.hub != nil {
		if err := sc.hub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event hub: %w", err))
		}
	}
	if err := sc.resolver.Close(); err != nil {
		errs = append(errs, fmt.Errorf("client cache: %w", err))
	}
	if err := sc.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("registry: %w", err))
	}

	sc.cancel()

	sc.logger.Info("Server context shutdown complete")
	return errors.Join(errs...)
}

// IsShutdown returns true if the server context has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

func (sc *ServerContext) validate() error {
	if sc.vault == nil {
		return ErrMissingVault
	}
	if sc.registry == nil {
		return ErrMissingRegistry
	}
	if sc.resolver == nil {
		return ErrMissingResolver
	}
	if sc.supervisor == nil {
		return ErrMissingSupervisor
	}
	if sc.config == nil {
		return ErrMissingConfig
	}
	return nil
}

// Config holds the server configuration.
type Config struct {
	ServerName string `json:"serverName"`
	Version    string `json:"version"`

	// ReadOnly blocks tools that change cluster state.
	ReadOnly bool `json:"readOnly"`

	// LegacyDir is scanned by migrate_legacy_credentials.
	LegacyDir string `json:"legacyDir"`
}

// NewDefaultConfig creates a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName: "kubedeck",
		Version:    "dev",
	}
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
