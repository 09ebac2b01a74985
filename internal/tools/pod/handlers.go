package pod

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/server"
	"github.com/giantswarm/kubedeck/internal/session"
	"github.com/giantswarm/kubedeck/internal/supervisor"
	"github.com/giantswarm/kubedeck/internal/tools"
)

// SessionResponse acknowledges a session start or stop.
type SessionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Key       string `json:"key,omitempty"`
	ClusterID string `json:"clusterId,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	StreamID  string `json:"streamId,omitempty"`
	Event     string `json:"event,omitempty"`
}

func handleStartResourceWatch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	clusterID := tools.OptionalString(args, tools.ArgClusterID)
	namespace := tools.OptionalString(args, tools.ArgNamespace)

	if err := sc.Supervisor().StartPodWatch(ctx, clusterID, namespace); err != nil {
		return tools.ErrorResult("Failed to start pod watch", err), nil
	}

	return tools.JSONResult(SessionResponse{
		Success:   true,
		Message:   fmt.Sprintf("Watching pods in %s", namespace),
		Key:       string(session.PodWatchKey(clusterID, namespace)),
		ClusterID: clusterID,
		Namespace: namespace,
		Event:     events.NamePodEvent,
	})
}

func handleStopResourceWatch(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	clusterID, err := tools.RequiredString(args, tools.ArgClusterID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	namespace, err := tools.RequiredString(args, tools.ArgNamespace)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stopped := sc.Supervisor().StopPodWatch(clusterID, namespace)
	message := "Pod watch stopped"
	if !stopped {
		message = "No pod watch was running"
	}
	return tools.JSONResult(SessionResponse{
		Success:   stopped,
		Message:   message,
		Key:       string(session.PodWatchKey(clusterID, namespace)),
		ClusterID: clusterID,
		Namespace: namespace,
	})
}

func handleStartLogTail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req := supervisor.LogTailRequest{
		ClusterID: tools.OptionalString(args, tools.ArgClusterID),
		Namespace: tools.OptionalString(args, tools.ArgNamespace),
		Pod:       tools.OptionalString(args, tools.ArgPod),
		Container: tools.OptionalString(args, tools.ArgContainer),
		StreamID:  tools.OptionalString(args, tools.ArgStreamID),
	}

	if err := sc.Supervisor().StartLogTail(ctx, req); err != nil {
		return tools.ErrorResult("Failed to start log tail", err), nil
	}

	return tools.JSONResult(SessionResponse{
		Success:   true,
		Message:   fmt.Sprintf("Following logs of %s/%s", req.Namespace, req.Pod),
		Key:       string(session.LogTailKey(req.StreamID)),
		ClusterID: req.ClusterID,
		Namespace: req.Namespace,
		StreamID:  req.StreamID,
		Event:     events.ContainerLogsName(req.StreamID),
	})
}

func handleStopLogTail(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	streamID, err := tools.RequiredString(request.GetArguments(), tools.ArgStreamID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stopped := sc.Supervisor().StopLogTail(streamID)
	message := "Log tail stopped"
	if !stopped {
		message = "No log tail was running"
	}
	return tools.JSONResult(SessionResponse{
		Success:  stopped,
		Message:  message,
		Key:      string(session.LogTailKey(streamID)),
		StreamID: streamID,
	})
}

func handleListSessions(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return tools.JSONResult(sc.Supervisor().Sessions())
}

func handleListNamespaces(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	clusterID, err := tools.RequiredString(request.GetArguments(), tools.ArgClusterID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	clients, err := sc.Resolver().Resolve(ctx, clusterID)
	if err != nil {
		return tools.ErrorResult("Failed to connect to cluster", err), nil
	}
	namespaces, err := k8s.ListNamespaces(ctx, clients.Kube)
	if err != nil {
		return tools.ErrorResult("Failed to list namespaces", err), nil
	}
	sc.TouchCluster(ctx, clusterID)
	return tools.JSONResult(namespaces)
}

func handleListPods(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	clusterID, err := tools.RequiredString(args, tools.ArgClusterID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	namespace, err := tools.RequiredString(args, tools.ArgNamespace)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	clients, err := sc.Resolver().Resolve(ctx, clusterID)
	if err != nil {
		return tools.ErrorResult("Failed to connect to cluster", err), nil
	}
	pods, err := k8s.ListPods(ctx, clients.Kube, namespace, time.Now())
	if err != nil {
		return tools.ErrorResult("Failed to list pods", err), nil
	}
	sc.TouchCluster(ctx, clusterID)
	return tools.JSONResult(pods)
}

func handleDeletePod(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if blocked := tools.CheckMutatingOperation(sc, "delete"); blocked != nil {
		return blocked, nil
	}

	args := request.GetArguments()
	clusterID, err := tools.RequiredString(args, tools.ArgClusterID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	namespace, err := tools.RequiredString(args, tools.ArgNamespace)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := tools.RequiredString(args, tools.ArgPod)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if namespace == k8s.AllNamespaces {
		return mcp.NewToolResultError("namespace must name a single namespace"), nil
	}

	clients, err := sc.Resolver().Resolve(ctx, clusterID)
	if err != nil {
		return tools.ErrorResult("Failed to connect to cluster", err), nil
	}
	if err := k8s.DeletePod(ctx, clients.Kube, namespace, name); err != nil {
		return tools.ErrorResult("Failed to delete pod", err), nil
	}
	sc.TouchCluster(ctx, clusterID)
	return mcp.NewToolResultText(fmt.Sprintf("Pod %s/%s deleted", namespace, name)), nil
}

func handleGetPodEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	clusterID, err := tools.RequiredString(args, tools.ArgClusterID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	namespace, err := tools.RequiredString(args, tools.ArgNamespace)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := tools.RequiredString(args, tools.ArgPod)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	clients, err := sc.Resolver().Resolve(ctx, clusterID)
	if err != nil {
		return tools.ErrorResult("Failed to connect to cluster", err), nil
	}
	podEvents, err := k8s.PodEvents(ctx, clients.Kube, namespace, name)
	if err != nil {
		return tools.ErrorResult("Failed to get pod events", err), nil
	}
	sc.TouchCluster(ctx, clusterID)
	return tools.JSONResult(podEvents)
}
