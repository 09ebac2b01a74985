package k8s

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"

	"github.com/giantswarm/kubedeck/internal/logging"
)

const defaultHealthCheckPath = "/healthz"

// ConnectivityConfig controls client rate limits and the optional reachability
// probe performed before a freshly built client is cached.
type ConnectivityConfig struct {
	// ConnectionTimeout bounds the reachability probe.
	//
	// Default: 5 seconds.
	ConnectionTimeout time.Duration

	// HealthCheckPath is the API path probed by CheckConnectivity.
	// Default: "/healthz".
	HealthCheckPath string

	// QPS is the client-side queries per second limit.
	//
	// Default: 20.
	QPS float32

	// Burst is the maximum burst for throttled requests.
	//
	// Default: 30.
	Burst int
}

// DefaultConnectivityConfig returns the defaults for a desktop client that
// talks to a handful of clusters.
func DefaultConnectivityConfig() ConnectivityConfig {
	return ConnectivityConfig{
		ConnectionTimeout: 5 * time.Second,
		HealthCheckPath:   defaultHealthCheckPath,
		QPS:               DefaultQPSLimit,
		Burst:             DefaultBurstLimit,
	}
}

// ApplyConnectivityConfig applies rate limits to config in place.
//
// rest.Config.Timeout is left untouched: it would also cut long-lived log
// follows and watches. Request deadlines come from the caller's context.
func ApplyConnectivityConfig(config *rest.Config, cc ConnectivityConfig) {
	if config == nil {
		return
	}
	if cc.QPS > 0 {
		config.QPS = cc.QPS
	}
	if cc.Burst > 0 {
		config.Burst = cc.Burst
	}
}

// CheckConnectivity performs an unauthenticated GET against the cluster's
// health endpoint and classifies any failure as a timeout, TLS or general
// connection error.
func CheckConnectivity(ctx context.Context, clusterID string, config *rest.Config, cc ConnectivityConfig) error {
	if config == nil {
		return &ConnectionError{
			ClusterID: clusterID,
			Host:      "<nil config>",
			Reason:    "config is nil",
		}
	}

	timeout := cc.ConnectionTimeout
	if timeout <= 0 {
		timeout = DefaultConnectivityConfig().ConnectionTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	configCopy := rest.CopyConfig(config)
	configCopy.APIPath = "/api"
	configCopy.GroupVersion = &schema.GroupVersion{Version: "v1"}
	configCopy.NegotiatedSerializer = scheme.Codecs.WithoutConversion()
	configCopy.Timeout = timeout

	restClient, err := rest.RESTClientFor(configCopy)
	if err != nil {
		return wrapConnectivityError(clusterID, config.Host, "failed to create REST client", err)
	}

	healthPath := cc.HealthCheckPath
	if healthPath == "" {
		healthPath = defaultHealthCheckPath
	}

	if err := restClient.Get().AbsPath(healthPath).Do(probeCtx).Error(); err != nil {
		wrapped := wrapConnectivityError(clusterID, config.Host, "health check failed", err)
		var timeoutErr *ConnectivityTimeoutError
		if errors.As(wrapped, &timeoutErr) && probeCtx.Err() != nil {
			timeoutErr.Timeout = timeout
		}
		return wrapped
	}
	return nil
}

// tlsReasons maps error text fragments to the reason shown for a TLS
// failure. The first match wins; "" marks a TLS error without a more
// specific reason.
var tlsReasons = []struct {
	fragment string
	reason   string
}{
	{"unknown authority", "certificate signed by unknown authority"},
	{"has expired", "certificate has expired"},
	{"not valid yet", "certificate is not yet valid"},
	{"doesn't match", "certificate hostname mismatch"},
	{"is valid for", "certificate hostname mismatch"},
	{"handshake failure", "TLS handshake failed"},
	{"certificate signed by", ""},
	{"certificate is not valid", ""},
	{"bad certificate", ""},
	{"x509:", ""},
	{"tls:", ""},
}

// wrapConnectivityError classifies err as a timeout, TLS or connection
// error. The host is sanitized because the result reaches logs and the GUI.
func wrapConnectivityError(clusterID, host, reason string, err error) error {
	host = logging.SanitizeHost(host)

	switch {
	case err == nil:
		return &ConnectionError{ClusterID: clusterID, Host: host, Reason: reason}
	case errors.Is(err, context.DeadlineExceeded):
		return &ConnectivityTimeoutError{ClusterID: clusterID, Host: host, Err: err}
	case errors.Is(err, context.Canceled):
		return &ConnectionError{ClusterID: clusterID, Host: host, Reason: "request cancelled", Err: err}
	}

	if tlsReason, ok := classifyTLS(err); ok {
		return &TLSError{ClusterID: clusterID, Host: host, Reason: tlsReason, Err: err}
	}
	if timedOut(err) {
		return &ConnectivityTimeoutError{ClusterID: clusterID, Host: host, Err: err}
	}
	return &ConnectionError{ClusterID: clusterID, Host: host, Reason: reason, Err: err}
}

func classifyTLS(err error) (string, bool) {
	msg := err.Error()
	for _, r := range tlsReasons {
		if !strings.Contains(msg, r.fragment) {
			continue
		}
		if r.reason == "" {
			return "TLS error", true
		}
		return r.reason, true
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return "TLS error", true
	}
	return "", false
}

func timedOut(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded")
}
