// Package server wires the long-lived kubedeck components together.
//
// ServerContext owns the credential vault, the cluster registry, the client
// resolver, the session supervisor and the optional websocket event hub. It
// is built with functional options, handed to every tool package, and shut
// down once when the process exits:
//
//	sc, err := server.NewServerContext(ctx,
//		server.WithVault(v),
//		server.WithRegistry(store),
//		server.WithResolver(resolver),
//		server.WithSupervisor(sup),
//		server.WithHub(hub),
//	)
//
// Shutdown stops every running session first, so their terminal events are
// still delivered, then closes the hub, the client cache and the database.
//
// For the HTTP transports NewHTTPHandler mounts the MCP routes, the event
// channel at /events and the health endpoints (/healthz, /readyz,
// /healthz/detailed) behind the middleware chain. Prometheus metrics are
// served by a separate MetricsServer bound to loopback.
package server
