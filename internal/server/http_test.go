package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		_, _ = w.Write(body)
	})
}

func TestNewHTTPHandler_Routes(t *testing.T) {
	sc := newTestServerContext(t)
	handler := NewHTTPHandler(sc, HTTPConfig{
		Routes:         map[string]http.Handler{"/mcp": echoHandler()},
		AllowedOrigins: []string{"http://localhost:1420"},
	})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		origin     string
		wantStatus int
		wantBody   string
		wantOrigin string
	}{
		{
			name:       "mcp route",
			method:     http.MethodPost,
			path:       "/mcp",
			body:       `{"jsonrpc":"2.0"}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"jsonrpc":"2.0"}`,
		},
		{
			name:       "health endpoint",
			method:     http.MethodGet,
			path:       "/healthz",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown path",
			method:     http.MethodGet,
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "allowed origin",
			method:     http.MethodPost,
			path:       "/mcp",
			origin:     "http://localhost:1420",
			wantStatus: http.StatusOK,
			wantOrigin: "http://localhost:1420",
		},
		{
			name:       "foreign origin",
			method:     http.MethodPost,
			path:       "/mcp",
			origin:     "https://evil.example.com",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestNewHTTPHandler_MaxRequestSize(t *testing.T) {
	sc := newTestServerContext(t)
	handler := NewHTTPHandler(sc, HTTPConfig{
		Routes:         map[string]http.Handler{"/mcp": echoHandler()},
		MaxRequestSize: 16,
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(strings.Repeat("x", 64))))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestNewHTTPHandler_EventsWithMetrics(t *testing.T) {
	sc := newTestServerContext(t, WithInstrumentationProvider(createTestProvider(t)))
	srv := httptest.NewServer(NewHTTPHandler(sc, HTTPConfig{}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	assert.Eventually(t, func() bool { return sc.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestNewHTTPHandler_NoHub(t *testing.T) {
	c := newComponents(t)
	opts := c.options()[:4]
	sc, err := NewServerContext(t.Context(), opts...)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewHTTPHandler(sc, HTTPConfig{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
