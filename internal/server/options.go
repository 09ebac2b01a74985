package server

import (
	"errors"
	"log/slog"

	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/instrumentation"
	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/registry"
	"github.com/giantswarm/kubedeck/internal/supervisor"
	"github.com/giantswarm/kubedeck/internal/vault"
)

// Option is a functional option for configuring ServerContext.
type Option func(*ServerContext) error

// WithVault sets the credential vault.
func WithVault(v *vault.Vault) Option {
	return func(sc *ServerContext) error {
		if v == nil {
			return ErrMissingVault
		}
		sc.vault = v
		return nil
	}
}

// WithRegistry sets the cluster registry.
func WithRegistry(store *registry.Store) Option {
	return func(sc *ServerContext) error {
		if store == nil {
			return ErrMissingRegistry
		}
		sc.registry = store
		return nil
	}
}

// WithResolver sets the cluster client resolver.
func WithResolver(resolver *k8s.Resolver) Option {
	return func(sc *ServerContext) error {
		if resolver == nil {
			return ErrMissingResolver
		}
		sc.resolver = resolver
		return nil
	}
}

// WithSupervisor sets the session supervisor.
func WithSupervisor(s *supervisor.Supervisor) Option {
	return func(sc *ServerContext) error {
		if s == nil {
			return ErrMissingSupervisor
		}
		sc.supervisor = s
		return nil
	}
}

// WithHub sets the websocket event hub served on HTTP transports.
func WithHub(hub *events.Hub) Option {
	return func(sc *ServerContext) error {
		sc.hub = hub
		return nil
	}
}

// WithLogger sets the logger for the ServerContext.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return ErrMissingLogger
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig sets the configuration for the ServerContext.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return ErrMissingConfig
		}
		sc.config = config.Clone()
		return nil
	}
}

// WithReadOnly blocks tools that change cluster state.
func WithReadOnly(enabled bool) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.ReadOnly = enabled
		return nil
	}
}

// WithInstrumentationProvider sets the OpenTelemetry instrumentation provider.
func WithInstrumentationProvider(provider *instrumentation.Provider) Option {
	return func(sc *ServerContext) error {
		sc.instrumentationProvider = provider
		return nil
	}
}

// Error definitions for ServerContext validation and operations.
var (
	ErrMissingVault      = errors.New("credential vault is required")
	ErrMissingRegistry   = errors.New("cluster registry is required")
	ErrMissingResolver   = errors.New("client resolver is required")
	ErrMissingSupervisor = errors.New("session supervisor is required")
	ErrMissingLogger     = errors.New("logger is required")
	ErrMissingConfig     = errors.New("configuration is required")
)
