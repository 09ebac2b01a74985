package dashboard

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/server"
	"github.com/giantswarm/kubedeck/internal/tools"
)

func handleGetClusterMetrics(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	clusterID, err := tools.RequiredString(request.GetArguments(), tools.ArgClusterID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	clients, err := sc.Resolver().Resolve(ctx, clusterID)
	if err != nil {
		return tools.ErrorResult("Failed to connect to cluster", err), nil
	}
	metrics, err := k8s.GetClusterMetrics(ctx, clients, logging.WithClusterID(sc.Logger(), clusterID))
	if err != nil {
		return tools.ErrorResult("Failed to get cluster metrics", err), nil
	}
	sc.TouchCluster(ctx, clusterID)
	return tools.JSONResult(metrics)
}

func handleGetWarningEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	clusterID, err := tools.RequiredString(request.GetArguments(), tools.ArgClusterID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	clients, err := sc.Resolver().Resolve(ctx, clusterID)
	if err != nil {
		return tools.ErrorResult("Failed to connect to cluster", err), nil
	}
	warnings, err := k8s.WarningEvents(ctx, clients.Kube, time.Now())
	if err != nil {
		return tools.ErrorResult("Failed to get warning events", err), nil
	}
	sc.TouchCluster(ctx, clusterID)
	return tools.JSONResult(warnings)
}
