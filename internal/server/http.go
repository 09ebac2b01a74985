package server

import (
	"net/http"

	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/server/middleware"
)

// DefaultMaxRequestSize caps MCP request bodies.
const DefaultMaxRequestSize int64 = 4 << 20

// HTTPConfig configures the handler shared by the HTTP transports.
type HTTPConfig struct {
	// Routes maps paths to MCP transport handlers.
	Routes map[string]http.Handler

	// EventsPath is where the websocket hub is mounted. Empty means
	// events.DefaultEventsPath.
	EventsPath string

	// AllowedOrigins are the GUI origins allowed by CORS.
	AllowedOrigins []string

	// MaxRequestSize caps request bodies. Zero means DefaultMaxRequestSize,
	// a negative value disables the cap.
	MaxRequestSize int64
}

// NewHTTPHandler mounts the MCP transport routes, the event channel and the
// health endpoints on one mux and wraps it in tracing, metrics, security
// headers, CORS and a body size limit.
func NewHTTPHandler(sc *ServerContext, config HTTPConfig) http.Handler {
	mux := http.NewServeMux()
	for path, handler := range config.Routes {
		mux.Handle(path, handler)
	}

	if sc.hub != nil {
		eventsPath := config.EventsPath
		if eventsPath == "" {
			eventsPath = events.DefaultEventsPath
		}
		mux.Handle(eventsPath, sc.hub)
	}

	NewHealthChecker(sc).RegisterHealthEndpoints(mux)

	maxBytes := config.MaxRequestSize
	if maxBytes == 0 {
		maxBytes = DefaultMaxRequestSize
	}

	var handler http.Handler = mux
	handler = middleware.MaxRequestSize(maxBytes)(handler)
	handler = middleware.CORS(config.AllowedOrigins)(handler)
	handler = middleware.SecurityHeaders()(handler)
	handler = middleware.HTTPMetrics(sc.instrumentationProvider)(handler)
	handler = middleware.Tracing(sc.Config().ServerName)(handler)
	return handler
}
