package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		origin      string
		method      string
		preflight   bool
		wantOrigin  string
		wantStatus  int
		wantHandler bool
	}{
		{
			name:        "allowed origin",
			allowed:     []string{"http://localhost:1420"},
			origin:      "http://localhost:1420",
			method:      http.MethodPost,
			wantOrigin:  "http://localhost:1420",
			wantStatus:  http.StatusOK,
			wantHandler: true,
		},
		{
			name:        "origin match is case-insensitive",
			allowed:     []string{"http://LOCALHOST:1420"},
			origin:      "http://localhost:1420",
			method:      http.MethodPost,
			wantOrigin:  "http://localhost:1420",
			wantStatus:  http.StatusOK,
			wantHandler: true,
		},
		{
			name:        "unknown origin gets no CORS headers",
			allowed:     []string{"http://localhost:1420"},
			origin:      "https://evil.example.com",
			method:      http.MethodPost,
			wantStatus:  http.StatusOK,
			wantHandler: true,
		},
		{
			name:        "wildcard echoes origin",
			allowed:     []string{"*"},
			origin:      "tauri://localhost",
			method:      http.MethodGet,
			wantOrigin:  "tauri://localhost",
			wantStatus:  http.StatusOK,
			wantHandler: true,
		},
		{
			name:       "preflight short-circuits",
			allowed:    []string{"http://localhost:1420"},
			origin:     "http://localhost:1420",
			method:     http.MethodOptions,
			preflight:  true,
			wantOrigin: "http://localhost:1420",
			wantStatus: http.StatusNoContent,
		},
		{
			name:        "plain OPTIONS reaches handler",
			allowed:     []string{"http://localhost:1420"},
			method:      http.MethodOptions,
			wantStatus:  http.StatusOK,
			wantHandler: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/mcp", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantHandler, called)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Mcp-Session-Id")
			}
		})
	}
}

func TestNormalizeOrigins(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []string
		wantErr string
	}{
		{
			name:  "empty",
			input: nil,
			want:  []string{},
		},
		{
			name:  "trims and drops blanks",
			input: []string{" http://localhost:1420 ", ""},
			want:  []string{"http://localhost:1420"},
		},
		{
			name:  "strips trailing slash",
			input: []string{"https://app.example.com/"},
			want:  []string{"https://app.example.com"},
		},
		{
			name:  "keeps wildcard and tauri",
			input: []string{"*", "tauri://localhost"},
			want:  []string{"*", "tauri://localhost"},
		},
		{
			name:    "missing scheme",
			input:   []string{"localhost:1420"},
			wantErr: "scheme",
		},
		{
			name:    "unsupported scheme",
			input:   []string{"ftp://example.com"},
			wantErr: "must use",
		},
		{
			name:    "path not allowed",
			input:   []string{"http://localhost:1420/app"},
			wantErr: "path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeOrigins(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaxRequestSize(t *testing.T) {
	tests := []struct {
		name      string
		maxBytes  int64
		bodySize  int
		wantError bool
	}{
		{name: "within limit", maxBytes: 1024, bodySize: 100},
		{name: "exactly at limit", maxBytes: 1024, bodySize: 1024},
		{name: "exceeds limit", maxBytes: 1024, bodySize: 2048, wantError: true},
		{name: "disabled with zero", maxBytes: 0, bodySize: 10000},
		{name: "disabled with negative", maxBytes: -1, bodySize: 10000},
		{name: "empty body", maxBytes: 1024, bodySize: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				readErr   error
				bytesRead int
			)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				readErr = err
				bytesRead = len(body)
				if err != nil {
					w.WriteHeader(http.StatusRequestEntityTooLarge)
					return
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(strings.Repeat("a", tt.bodySize)))
			rec := httptest.NewRecorder()

			MaxRequestSize(tt.maxBytes)(handler).ServeHTTP(rec, req)

			if tt.wantError {
				assert.Error(t, readErr)
				assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
				return
			}
			assert.NoError(t, readErr)
			assert.Equal(t, tt.bodySize, bytesRead)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestMaxRequestSize_ChunkedBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(strings.Repeat("a", 200)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()

	MaxRequestSize(100)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
