// Package logging provides structured logging utilities for kubedeck.
//
// It centralizes attribute naming so records from the vault, the registry and
// the session supervisor can be correlated, and builds the process logger from
// configuration (text or JSON, stderr or a rotated file).
//
// # Usage Patterns
//
//	logger := logging.WithOperation(slog.Default(), "watch.pods")
//	logger.Info("Session started",
//	    logging.ClusterID(id),
//	    logging.Namespace("default"))
//
// API server addresses and errors from API servers go through SanitizeHost
// or SanitizedErr so network topology does not end up in log files.
package logging
