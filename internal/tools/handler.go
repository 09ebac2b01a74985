// Package tools provides shared utilities for MCP tool handlers.
package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kubedeck/internal/instrumentation"
	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/server"
)

// ToolHandler is the signature for MCP tool handler functions that take ServerContext.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// Wrap adapts handler to mcp-go. Every invocation runs in a tool span, is
// counted in the tool call metrics and logged at debug level with its
// duration and outcome. Tool failures are reported in the result, so a
// result with IsError set counts as an error.
func Wrap(toolName string, handler ToolHandler, sc *server.ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		attrs := instrumentation.NewSpanAttributeBuilder()
		args := request.GetArguments()
		if clusterID, ok := args[ArgClusterID].(string); ok && clusterID != "" {
			attrs.WithClusterID(clusterID)
		}
		if namespace, ok := args[ArgNamespace].(string); ok && namespace != "" {
			attrs.WithNamespace(namespace)
		}

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, attrs.Build()...)
		start := time.Now()

		result, err := handler(ctx, request, sc)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
		}
		instrumentation.EndSpan(span, err)
		sc.Metrics().RecordToolCall(ctx, toolName, status, time.Since(start))

		logger := logging.WithTool(sc.Logger(), toolName)
		if traceID := instrumentation.GetTraceID(ctx); traceID != "" {
			logger = logger.With("trace_id", traceID)
		}
		logger.Debug("Tool call finished",
			logging.Status(status),
			"duration", time.Since(start))

		return result, err
	}
}
