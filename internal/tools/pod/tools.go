package pod

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kubedeck/internal/server"
	"github.com/giantswarm/kubedeck/internal/tools"
)

func clusterIDParam() mcp.ToolOption {
	return mcp.WithString(tools.ArgClusterID,
		mcp.Required(),
		mcp.Description("Id of the registered cluster"),
	)
}

// RegisterPodTools registers the pod listing and session tools with the MCP server.
func RegisterPodTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	startWatchTool := mcp.NewTool("start_resource_watch",
		mcp.WithDescription("Stream pod changes of a namespace as pod_event notifications. A running watch on the same cluster and namespace is replaced"),
		clusterIDParam(),
		mcp.WithString(tools.ArgNamespace,
			mcp.Required(),
			mcp.Description("Namespace to watch, or 'all' for every namespace"),
		),
	)
	s.AddTool(startWatchTool, tools.Wrap("start_resource_watch", handleStartResourceWatch, sc))

	stopWatchTool := mcp.NewTool("stop_resource_watch",
		mcp.WithDescription("Stop the pod watch on a namespace"),
		clusterIDParam(),
		mcp.WithString(tools.ArgNamespace,
			mcp.Required(),
			mcp.Description("Namespace of the watch, or 'all'"),
		),
	)
	s.AddTool(stopWatchTool, tools.Wrap("stop_resource_watch", handleStopResourceWatch, sc))

	startTailTool := mcp.NewTool("start_log_tail",
		mcp.WithDescription("Follow the logs of a container, emitting each line as a container_logs_<streamId> notification. A running tail with the same stream id is replaced"),
		clusterIDParam(),
		mcp.WithString(tools.ArgNamespace,
			mcp.Required(),
			mcp.Description("Namespace of the pod"),
		),
		mcp.WithString(tools.ArgPod,
			mcp.Required(),
			mcp.Description("Name of the pod"),
		),
		mcp.WithString(tools.ArgContainer,
			mcp.Description("Name of the container (optional for single-container pods)"),
		),
		mcp.WithString(tools.ArgStreamID,
			mcp.Required(),
			mcp.Description("Caller-chosen id that names the stream's events"),
		),
	)
	s.AddTool(startTailTool, tools.Wrap("start_log_tail", handleStartLogTail, sc))

	stopTailTool := mcp.NewTool("stop_log_tail",
		mcp.WithDescription("Stop a log tail"),
		mcp.WithString(tools.ArgStreamID,
			mcp.Required(),
			mcp.Description("Stream id passed to start_log_tail"),
		),
	)
	s.AddTool(stopTailTool, tools.Wrap("stop_log_tail", handleStopLogTail, sc))

	listSessionsTool := mcp.NewTool("list_sessions",
		mcp.WithDescription("List running pod watches and log tails"),
	)
	s.AddTool(listSessionsTool, tools.Wrap("list_sessions", handleListSessions, sc))

	listNamespacesTool := mcp.NewTool("list_namespaces",
		mcp.WithDescription("List the namespaces of a cluster"),
		clusterIDParam(),
	)
	s.AddTool(listNamespacesTool, tools.Wrap("list_namespaces", handleListNamespaces, sc))

	listPodsTool := mcp.NewTool("list_pods",
		mcp.WithDescription("List pods with their containers, volumes and conditions"),
		clusterIDParam(),
		mcp.WithString(tools.ArgNamespace,
			mcp.Required(),
			mcp.Description("Namespace to list, or 'all' for every namespace"),
		),
	)
	s.AddTool(listPodsTool, tools.Wrap("list_pods", handleListPods, sc))

	deletePodTool := mcp.NewTool("delete_pod",
		mcp.WithDescription("Delete a pod"),
		clusterIDParam(),
		mcp.WithString(tools.ArgNamespace,
			mcp.Required(),
			mcp.Description("Namespace of the pod"),
		),
		mcp.WithString(tools.ArgPod,
			mcp.Required(),
			mcp.Description("Name of the pod"),
		),
	)
	s.AddTool(deletePodTool, tools.Wrap("delete_pod", handleDeletePod, sc))

	podEventsTool := mcp.NewTool("get_pod_events",
		mcp.WithDescription("List the events of a pod, newest first"),
		clusterIDParam(),
		mcp.WithString(tools.ArgNamespace,
			mcp.Required(),
			mcp.Description("Namespace of the pod"),
		),
		mcp.WithString(tools.ArgPod,
			mcp.Required(),
			mcp.Description("Name of the pod"),
		),
	)
	s.AddTool(podEventsTool, tools.Wrap("get_pod_events", handleGetPodEvents, sc))

	return nil
}
