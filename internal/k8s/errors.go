package k8s

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for client construction and cluster connectivity.
var (
	// ErrClientConstruction indicates that a client could not be built from a
	// cluster's credential file.
	ErrClientConstruction = errors.New("failed to construct cluster client")

	// ErrConnectionFailed indicates a network or TLS error when contacting a
	// cluster API server.
	ErrConnectionFailed = errors.New("failed to connect to cluster")

	// ErrConnectionTimeout indicates that contacting the cluster timed out.
	ErrConnectionTimeout = errors.New("connection timeout")

	// ErrTLSHandshakeFailed indicates a certificate or TLS protocol problem.
	ErrTLSHandshakeFailed = errors.New("TLS handshake failed")

	// ErrResolverClosed indicates that the resolver has been shut down.
	ErrResolverClosed = errors.New("client resolver is closed")
)

// Stage names the step of client construction that failed.
type Stage string

const (
	StageLookup       Stage = "lookup"
	StageCredential   Stage = "credential"
	StageConfig       Stage = "config"
	StageClient       Stage = "client"
	StageConnectivity Stage = "connectivity"
)

// ClientError reports a failure to build a client for a registered cluster.
type ClientError struct {
	ClusterID string
	Stage     Stage
	Reason    string
	Err       error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cluster %q: %s failed: %s: %v", e.ClusterID, e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("cluster %q: %s failed: %s", e.ClusterID, e.Stage, e.Reason)
}

// Unwrap returns the underlying error so registry and vault sentinels stay
// matchable.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is matches ErrClientConstruction.
func (e *ClientError) Is(target error) bool {
	return target == ErrClientConstruction
}

// UserFacingError returns a message suitable for the GUI.
func (e *ClientError) UserFacingError() string {
	var uf interface{ UserFacingError() string }
	if errors.As(e.Err, &uf) {
		return uf.UserFacingError()
	}
	return fmt.Sprintf("unable to connect to cluster: %s", e.Reason)
}

// ConnectionError provides detailed context about cluster connection failures.
type ConnectionError struct {
	ClusterID string
	Host      string
	Reason    string
	Err       error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection to cluster %q (%s) failed: %s: %v",
			e.ClusterID, e.Host, e.Reason, e.Err)
	}
	return fmt.Sprintf("connection to cluster %q (%s) failed: %s",
		e.ClusterID, e.Host, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is matches ErrConnectionFailed.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// UserFacingError returns a message suitable for the GUI.
func (e *ConnectionError) UserFacingError() string {
	return "cluster API server is unreachable - check your network connection and VPN"
}

// ConnectivityTimeoutError reports that the API server did not answer in time.
type ConnectivityTimeoutError struct {
	ClusterID string
	Host      string
	Timeout   time.Duration
	Err       error
}

// Error implements the error interface.
func (e *ConnectivityTimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("connection to cluster %q (%s) timed out after %s",
			e.ClusterID, e.Host, e.Timeout)
	}
	if e.Err != nil {
		return fmt.Sprintf("connection to cluster %q (%s) timed out: %v",
			e.ClusterID, e.Host, e.Err)
	}
	return fmt.Sprintf("connection to cluster %q (%s) timed out", e.ClusterID, e.Host)
}

// Unwrap returns the underlying error.
func (e *ConnectivityTimeoutError) Unwrap() error {
	return e.Err
}

// Is matches ErrConnectionTimeout and ErrConnectionFailed.
func (e *ConnectivityTimeoutError) Is(target error) bool {
	return target == ErrConnectionTimeout || target == ErrConnectionFailed
}

// UserFacingError returns a message suitable for the GUI.
func (e *ConnectivityTimeoutError) UserFacingError() string {
	return "connection to cluster timed out - the API server may be down or behind a VPN"
}

// TLSError reports a failed TLS handshake with the API server.
//
// TLS errors should not be worked around by disabling verification; the CA
// in the credential file is what needs fixing.
type TLSError struct {
	ClusterID string
	Host      string
	Reason    string
	Err       error
}

// Error implements the error interface.
func (e *TLSError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("TLS handshake with cluster %q (%s) failed: %s: %v",
			e.ClusterID, e.Host, e.Reason, e.Err)
	}
	return fmt.Sprintf("TLS handshake with cluster %q (%s) failed: %s",
		e.ClusterID, e.Host, e.Reason)
}

// Unwrap returns the underlying error.
func (e *TLSError) Unwrap() error {
	return e.Err
}

// Is matches ErrTLSHandshakeFailed and ErrConnectionFailed.
func (e *TLSError) Is(target error) bool {
	return target == ErrTLSHandshakeFailed || target == ErrConnectionFailed
}

// UserFacingError returns a message suitable for the GUI.
func (e *TLSError) UserFacingError() string {
	switch {
	case strings.Contains(e.Reason, "expired"):
		return "cluster certificate has expired"
	case strings.Contains(e.Reason, "unknown authority"):
		return "cluster certificate not trusted - verify the kubeconfig contains the correct CA certificate"
	case strings.Contains(e.Reason, "mismatch") || strings.Contains(e.Reason, "doesn't match"):
		return "cluster certificate doesn't match the server hostname"
	default:
		return "secure connection to cluster failed"
	}
}
