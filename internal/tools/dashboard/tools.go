package dashboard

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kubedeck/internal/server"
	"github.com/giantswarm/kubedeck/internal/tools"
)

// RegisterDashboardTools registers the cluster overview tools with the MCP server.
func RegisterDashboardTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	metricsTool := mcp.NewTool("get_cluster_metrics",
		mcp.WithDescription("Summarize node capacity, allocatable resources and pod requests and limits for cpu, memory and pods"),
		mcp.WithString(tools.ArgClusterID,
			mcp.Required(),
			mcp.Description("Id of the registered cluster"),
		),
	)
	s.AddTool(metricsTool, tools.Wrap("get_cluster_metrics", handleGetClusterMetrics, sc))

	warningsTool := mcp.NewTool("get_warning_events",
		mcp.WithDescription("List the newest Warning events across all namespaces"),
		mcp.WithString(tools.ArgClusterID,
			mcp.Required(),
			mcp.Description("Id of the registered cluster"),
		),
	)
	s.AddTool(warningsTool, tools.Wrap("get_warning_events", handleGetWarningEvents, sc))

	return nil
}
