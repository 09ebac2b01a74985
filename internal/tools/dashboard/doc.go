// Package dashboard provides the MCP tools behind the cluster overview page:
// aggregated resource capacity and usage, and recent Warning events.
package dashboard
