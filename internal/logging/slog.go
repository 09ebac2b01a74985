package logging

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation  = "operation"
	KeyNamespace  = "namespace"
	KeyPod        = "pod"
	KeyContainer  = "container"
	KeyClusterID  = "cluster_id"
	KeyContext    = "context"
	KeySessionKey = "session_key"
	KeyStreamID   = "stream_id"
	KeyPath       = "path"
	KeyDuration   = "duration"
	KeyStatus     = "status"
	KeyError      = "error"
	KeyHost       = "host"
	KeyTool       = "tool"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ipv4Regex matches IPv4 addresses for sanitization.
var ipv4Regex = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// ipv6Regex matches IPv6 addresses in full, compressed and bracketed form.
var ipv6Regex = regexp.MustCompile(`\[?([0-9a-fA-F]{0,4}:){2,7}[0-9a-fA-F]{0,4}\]?`)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// WithClusterID returns a logger with the cluster_id attribute set.
func WithClusterID(logger *slog.Logger, clusterID string) *slog.Logger {
	return logger.With(slog.String(KeyClusterID, clusterID))
}

// WithSession returns a logger with the session_key attribute set.
func WithSession(logger *slog.Logger, key string) *slog.Logger {
	return logger.With(slog.String(KeySessionKey, key))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Namespace returns a slog attribute for the namespace.
func Namespace(ns string) slog.Attr {
	return slog.String(KeyNamespace, ns)
}

// Pod returns a slog attribute for a pod name.
func Pod(name string) slog.Attr {
	return slog.String(KeyPod, name)
}

// Container returns a slog attribute for a container name.
func Container(name string) slog.Attr {
	return slog.String(KeyContainer, name)
}

// ClusterID returns a slog attribute for a registry cluster id.
func ClusterID(id string) slog.Attr {
	return slog.String(KeyClusterID, id)
}

// Context returns a slog attribute for a kubeconfig context name.
func Context(name string) slog.Attr {
	return slog.String(KeyContext, name)
}

// SessionKey returns a slog attribute for a session table key.
func SessionKey(key string) slog.Attr {
	return slog.String(KeySessionKey, key)
}

// StreamID returns a slog attribute for a log stream id.
func StreamID(id string) slog.Attr {
	return slog.String(KeyStreamID, id)
}

// Path returns a slog attribute for a filesystem path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizedErr returns a slog attribute for an error with IP addresses redacted.
// Use it for errors coming back from API servers, which often embed the
// server address.
func SanitizedErr(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, SanitizeHost(err.Error()))
}

// Host returns a slog attribute for a host with IP addresses sanitized.
func Host(host string) slog.Attr {
	return slog.String(KeyHost, SanitizeHost(host))
}

// SanitizeHost redacts IPv4 and IPv6 addresses from a host or URL while
// keeping scheme, hostname and port.
//
// Examples:
//   - "https://192.168.1.100:6443" -> "https://<redacted-ip>:6443"
//   - "https://api.cluster.example.com:6443" -> unchanged
//   - "2001:db8::1" -> "<redacted-ip>"
//   - "" -> "<empty>"
func SanitizeHost(host string) string {
	if host == "" {
		return "<empty>"
	}

	redactIPs := func(s string) string {
		result := ipv4Regex.ReplaceAllString(s, "<redacted-ip>")
		return ipv6Regex.ReplaceAllString(result, "<redacted-ip>")
	}

	if !strings.Contains(host, "://") {
		return redactIPs(host)
	}

	parsed, err := url.Parse(host)
	if err != nil {
		return redactIPs(host)
	}

	if ipv4Regex.MatchString(parsed.Host) || ipv6Regex.MatchString(parsed.Host) {
		parsed.Host = redactIPs(parsed.Host)
		return parsed.String()
	}

	return host
}
