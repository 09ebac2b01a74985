// Package middleware provides the HTTP middleware wrapped around the MCP
// transports and the event channel: request metrics, tracing, security
// headers, CORS for the GUI origins and request size limits.
package middleware
