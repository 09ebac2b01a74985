package k8s

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/rest"
)

func TestApplyConnectivityConfig(t *testing.T) {
	config := &rest.Config{Host: "https://example", Timeout: 0}
	ApplyConnectivityConfig(config, ConnectivityConfig{QPS: 7, Burst: 9})

	assert.Equal(t, float32(7), config.QPS)
	assert.Equal(t, 9, config.Burst)
	assert.Zero(t, config.Timeout, "request timeout must stay unset so log follows are not cut")

	config = &rest.Config{QPS: 3, Burst: 4}
	ApplyConnectivityConfig(config, ConnectivityConfig{})
	assert.Equal(t, float32(3), config.QPS)
	assert.Equal(t, 4, config.Burst)

	ApplyConnectivityConfig(nil, DefaultConnectivityConfig())
}

func TestCheckConnectivity(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/healthz", r.URL.Path)
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		err := CheckConnectivity(context.Background(), "c", &rest.Config{Host: server.URL}, DefaultConnectivityConfig())
		assert.NoError(t, err)
	})

	t.Run("custom path", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/livez" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		cc := DefaultConnectivityConfig()
		cc.HealthCheckPath = "/livez"
		assert.NoError(t, CheckConnectivity(context.Background(), "c", &rest.Config{Host: server.URL}, cc))
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		err := CheckConnectivity(context.Background(), "c", &rest.Config{Host: server.URL}, DefaultConnectivityConfig())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnectionFailed)
	})

	t.Run("untrusted certificate", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		err := CheckConnectivity(context.Background(), "c", &rest.Config{Host: server.URL}, DefaultConnectivityConfig())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTLSHandshakeFailed)
	})

	t.Run("slow server", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		cc := DefaultConnectivityConfig()
		cc.ConnectionTimeout = 50 * time.Millisecond

		err := CheckConnectivity(context.Background(), "c", &rest.Config{Host: server.URL}, cc)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnectionTimeout)
	})

	t.Run("nil config", func(t *testing.T) {
		err := CheckConnectivity(context.Background(), "c", nil, DefaultConnectivityConfig())
		assert.ErrorIs(t, err, ErrConnectionFailed)
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestWrapConnectivityError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		assert func(t *testing.T, err error)
	}{
		{
			name: "deadline",
			err:  fmt.Errorf("get: %w", context.DeadlineExceeded),
			assert: func(t *testing.T, err error) {
				var target *ConnectivityTimeoutError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name: "cancelled",
			err:  context.Canceled,
			assert: func(t *testing.T, err error) {
				var target *ConnectionError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, "request cancelled", target.Reason)
			},
		},
		{
			name: "x509",
			err:  errors.New("x509: certificate signed by unknown authority"),
			assert: func(t *testing.T, err error) {
				var target *TLSError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, "certificate signed by unknown authority", target.Reason)
			},
		},
		{
			name: "net timeout",
			err:  timeoutErr{},
			assert: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrConnectionTimeout)
			},
		},
		{
			name: "other",
			err:  errors.New("connection refused"),
			assert: func(t *testing.T, err error) {
				var target *ConnectionError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, "probe", target.Reason)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assert(t, wrapConnectivityError("c", "https://10.0.0.1:6443", "probe", tt.err))
		})
	}
}

func TestWrapConnectivityErrorSanitizesHost(t *testing.T) {
	err := wrapConnectivityError("c", "https://10.0.0.1:6443", "probe", errors.New("refused"))
	assert.NotContains(t, err.Error(), "10.0.0.1")
}
