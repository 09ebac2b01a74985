package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/giantswarm/kubedeck/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is the listen address of the metrics server. It is
	// bound to loopback so metrics are never exposed beyond the machine.
	DefaultMetricsAddr = "127.0.0.1:9090"

	// DefaultShutdownTimeout bounds graceful shutdown of HTTP listeners.
	DefaultShutdownTimeout = 30 * time.Second
)

// MetricsServerConfig configures the dedicated metrics listener.
type MetricsServerConfig struct {
	// Addr is the listen address. Empty means DefaultMetricsAddr.
	Addr string

	// Enabled is informational; callers decide whether to start the server.
	Enabled bool

	// InstrumentationProvider supplies the Prometheus handler.
	InstrumentationProvider *instrumentation.Provider
}

// MetricsServer serves /metrics on a listener separate from the MCP
// transport.
type MetricsServer struct {
	addr       string
	httpServer *http.Server

	mu      sync.Mutex
	started bool
}

// NewMetricsServer creates a metrics server. It does not listen until Start.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.InstrumentationProvider == nil {
		return nil, errors.New("instrumentation provider is required")
	}

	addr := config.Addr
	if addr == "" {
		addr = DefaultMetricsAddr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", config.InstrumentationProvider.PrometheusHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

// Addr returns the listen address.
func (s *MetricsServer) Addr() string {
	return s.addr
}

// Start listens and serves until Shutdown. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *MetricsServer) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server. Shutting down a server that was never started
// is a no-op.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
