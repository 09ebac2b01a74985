package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/giantswarm/kubedeck/internal/instrumentation"
	"github.com/giantswarm/kubedeck/internal/k8s"
)

// registryPingTimeout bounds the database check of the readiness probe.
const registryPingTimeout = 2 * time.Second

const (
	statusOK           = "ok"
	statusNotReady     = "not ready"
	statusShuttingDown = "shutting down"
)

// HealthChecker serves the liveness, readiness and detailed health endpoints
// of the HTTP transports.
type HealthChecker struct {
	ready     atomic.Bool
	sc        *ServerContext
	startTime time.Time
}

// NewHealthChecker creates a HealthChecker that reports ready.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, startTime: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// DetailedHealthResponse reports the state of every long-lived component.
type DetailedHealthResponse struct {
	Status          string                      `json:"status"`
	Version         string                      `json:"version,omitempty"`
	Uptime          string                      `json:"uptime"`
	ReadOnly        bool                        `json:"read_only"`
	Sessions        *SessionHealthStatus        `json:"sessions,omitempty"`
	ClientCache     *k8s.CacheStats             `json:"client_cache,omitempty"`
	EventClients    int                         `json:"event_clients"`
	Instrumentation *InstrumentationHealthCheck `json:"instrumentation,omitempty"`
}

// SessionHealthStatus counts running sessions by kind.
type SessionHealthStatus struct {
	Active     int `json:"active"`
	PodWatches int `json:"pod_watches"`
	LogTails   int `json:"log_tails"`
}

// InstrumentationHealthCheck describes the configured exporters.
type InstrumentationHealthCheck struct {
	Enabled         bool   `json:"enabled"`
	MetricsExporter string `json:"metrics_exporter,omitempty"`
	TracingExporter string `json:"tracing_exporter,omitempty"`
}

// readinessCheck returns the check result and whether it passed. skip
// leaves the check out of the response.
type readinessCheck struct {
	name string
	run  func(ctx context.Context) (result string, ok bool, skip bool)
}

// RegisterHealthEndpoints registers /healthz, /readyz and /healthz/detailed.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

// LivenessHandler answers 200 as long as the process can serve requests.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: statusOK, Version: h.version()})
	})
}

// ReadinessHandler answers 503 while the server is marked not ready, is
// shutting down or cannot reach the registry database.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: statusOK, Checks: map[string]string{}}
		code := http.StatusOK

		for _, check := range h.readinessChecks() {
			result, ok, skip := check.run(r.Context())
			if skip {
				continue
			}
			resp.Checks[check.name] = result
			if !ok {
				resp.Status = statusNotReady
				code = http.StatusServiceUnavailable
			}
		}

		writeJSON(w, code, resp)
	})
}

func (h *HealthChecker) readinessChecks() []readinessCheck {
	return []readinessCheck{
		{name: "ready", run: func(context.Context) (string, bool, bool) {
			if !h.ready.Load() {
				return statusNotReady, false, false
			}
			return statusOK, true, false
		}},
		{name: "shutdown", run: func(context.Context) (string, bool, bool) {
			if h.shuttingDown() {
				return statusShuttingDown, false, false
			}
			return statusOK, true, false
		}},
		// The registry is closed during shutdown, so it is only pinged before.
		{name: "registry", run: func(ctx context.Context) (string, bool, bool) {
			if h.sc == nil || h.sc.registry == nil || h.shuttingDown() {
				return "", true, true
			}
			ctx, cancel := context.WithTimeout(ctx, registryPingTimeout)
			defer cancel()
			if err := h.sc.registry.Ping(ctx); err != nil {
				return "unavailable", false, false
			}
			return statusOK, true, false
		}},
		{name: "instrumentation", run: func(context.Context) (string, bool, bool) {
			if h.sc == nil || h.sc.InstrumentationProvider() == nil {
				return "", true, true
			}
			if !h.sc.InstrumentationProvider().Enabled() {
				return "disabled", true, false
			}
			return statusOK, true, false
		}},
	}
}

// DetailedHealthHandler reports uptime, sessions, the client cache, event
// clients and instrumentation.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := DetailedHealthResponse{
			Status:  statusOK,
			Version: h.version(),
			Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
		}

		if sc := h.sc; sc != nil {
			if cfg := sc.Config(); cfg != nil {
				resp.ReadOnly = cfg.ReadOnly
			}
			resp.Sessions = h.sessionStatus()
			if sc.resolver != nil {
				stats := sc.resolver.CacheStats()
				resp.ClientCache = &stats
			}
			if sc.hub != nil {
				resp.EventClients = sc.hub.ClientCount()
			}
			resp.Instrumentation = h.instrumentationStatus()
		}

		code := http.StatusOK
		switch {
		case !h.ready.Load():
			resp.Status, code = statusNotReady, http.StatusServiceUnavailable
		case h.shuttingDown():
			resp.Status, code = statusShuttingDown, http.StatusServiceUnavailable
		}

		writeJSON(w, code, resp)
	})
}

func (h *HealthChecker) version() string {
	if h.sc == nil || h.sc.Config() == nil {
		return ""
	}
	return h.sc.Config().Version
}

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

func (h *HealthChecker) sessionStatus() *SessionHealthStatus {
	if h.sc.supervisor == nil {
		return nil
	}
	status := &SessionHealthStatus{}
	for _, info := range h.sc.supervisor.Sessions() {
		status.Active++
		switch info.Kind {
		case instrumentation.SessionKindPodWatch:
			status.PodWatches++
		case instrumentation.SessionKindLogTail:
			status.LogTails++
		}
	}
	return status
}

func (h *HealthChecker) instrumentationStatus() *InstrumentationHealthCheck {
	provider := h.sc.InstrumentationProvider()
	if provider == nil {
		return &InstrumentationHealthCheck{}
	}
	cfg := provider.Config()
	return &InstrumentationHealthCheck{
		Enabled:         provider.Enabled(),
		MetricsExporter: cfg.MetricsExporter,
		TracingExporter: cfg.TracingExporter,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
