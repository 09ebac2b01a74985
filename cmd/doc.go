// Package cmd provides the command-line interface for kubedeck.
//
// This package implements a Cobra-based CLI with the following subcommands:
//   - serve: Starts the MCP server (default behavior when no subcommand is provided)
//   - clusters: Manages the cluster registry without starting a server
//   - version: Displays the application version
//   - self-update: Updates the binary to the latest version from GitHub releases
//
// Command Structure:
//
//	kubedeck [flags]                          # Starts the MCP server (default)
//	kubedeck serve [flags]                    # Explicitly starts the MCP server
//	kubedeck clusters list [-o table|json|yaml]
//	kubedeck clusters add NAME --context CTX --kubeconfig FILE
//	kubedeck clusters delete ID
//	kubedeck clusters migrate [--from DIR]
//	kubedeck clusters discover PATH
//	kubedeck version                          # Shows version information
//	kubedeck self-update                      # Updates to latest release
//
// The serve command supports multiple transport options:
//   - stdio: Standard input/output (default). Session events are delivered
//     as MCP notifications.
//   - sse: Server-Sent Events over HTTP. Session events are additionally
//     broadcast on the /events websocket.
//   - streamable-http: Streamable HTTP transport, with the /events websocket.
//
// Transport Configuration Examples:
//
//	kubedeck serve --transport stdio
//	kubedeck serve --transport sse --http-addr :8080 --sse-endpoint /sse
//	kubedeck serve --transport streamable-http --http-addr :9000 --http-endpoint /mcp
//
// Settings are read from ~/.kubedeck/config.yaml (or --config), KUBEDECK_*
// environment variables and flags, in increasing precedence.
package cmd
