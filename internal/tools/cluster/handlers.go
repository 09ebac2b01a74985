package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/registry"
	"github.com/giantswarm/kubedeck/internal/server"
	"github.com/giantswarm/kubedeck/internal/tools"
	"github.com/giantswarm/kubedeck/internal/vault"
)

// patchFields are the update_cluster arguments that form the patch.
var patchFields = []string{"name", "icon", "description", "tags"}

func handleAddCluster(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	name, err := tools.RequiredString(args, "name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	contextName, err := tools.RequiredString(args, "contextName")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := tools.RequiredString(args, "credentialSource")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := tools.StringSlice(args, "tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	source, err = sc.Vault().ImportSource(source)
	if err != nil {
		return tools.ErrorResult("Failed to import credentials", err), nil
	}

	id := registry.NewID()
	dest, err := sc.Vault().ExtractContext(source, contextName, id)
	if err != nil {
		return tools.ErrorResult("Failed to import credentials", err), nil
	}

	rec := registry.ClusterRecord{
		ID:             id,
		Name:           name,
		ContextName:    contextName,
		CredentialPath: dest,
		Icon:           optionalPointer(args, "icon"),
		Description:    optionalPointer(args, "description"),
		Tags:           tags,
	}
	added, err := sc.Registry().Add(ctx, rec)
	if err != nil {
		if rmErr := sc.Vault().Remove(dest); rmErr != nil {
			sc.Logger().Warn("Failed to remove credential file of rejected cluster",
				logging.Path(dest),
				logging.Err(rmErr))
		}
		return tools.ErrorResult("Failed to register cluster", err), nil
	}

	return tools.JSONResult(added)
}

func handleListClusters(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	records, err := sc.Registry().List(ctx)
	if err != nil {
		return tools.ErrorResult("Failed to list clusters", err), nil
	}
	return tools.JSONResult(records)
}

func handleGetCluster(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id, err := tools.RequiredString(request.GetArguments(), tools.ArgID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rec, err := sc.Registry().Get(ctx, id)
	if err != nil {
		return tools.ErrorResult("Failed to get cluster", err), nil
	}
	return tools.JSONResult(rec)
}

func handleUpdateCluster(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	id, err := tools.RequiredString(args, tools.ArgID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	patch, err := patchFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid update: %v", err)), nil
	}

	updated, err := sc.Registry().Update(ctx, id, patch)
	if err != nil {
		return tools.ErrorResult("Failed to update cluster", err), nil
	}
	if !patch.IsEmpty() {
		sc.Resolver().Invalidate(ctx, id)
	}
	return tools.JSONResult(updated)
}

func handleTouchCluster(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id, err := tools.RequiredString(request.GetArguments(), tools.ArgID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := sc.Registry().Touch(ctx, id); err != nil {
		return tools.ErrorResult("Failed to touch cluster", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cluster %s touched", id)), nil
}

func handleDeleteCluster(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id, err := tools.RequiredString(request.GetArguments(), tools.ArgID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if n := sc.Supervisor().StopCluster(id); n > 0 {
		logging.WithClusterID(sc.Logger(), id).Info("Stopped sessions of deleted cluster", "sessions", n)
	}

	if err := sc.Registry().Delete(ctx, id); err != nil {
		return tools.ErrorResult("Failed to delete cluster", err), nil
	}
	sc.Resolver().Invalidate(ctx, id)
	return mcp.NewToolResultText(fmt.Sprintf("Cluster %s deleted", id)), nil
}

func handleMigrateLegacy(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	dir := sc.Config().LegacyDir
	if dir == "" {
		dir = sc.Vault().Root()
	}

	report, err := sc.Registry().MigrateLegacy(ctx, dir)
	if err != nil {
		return tools.ErrorResult("Failed to migrate legacy credentials", err), nil
	}

	sc.Logger().Info("Legacy credential migration finished",
		logging.Path(dir),
		"migrated", len(report.Migrated),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed))

	return tools.JSONResult(report)
}

func handleDiscoverInFile(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	path, err := tools.RequiredString(request.GetArguments(), tools.ArgPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	found, err := sc.Vault().DiscoverContextsInFile(path)
	if err != nil {
		return tools.ErrorResult("Failed to read kubeconfig", err), nil
	}
	return tools.JSONResult(nonNil(found))
}

func handleDiscoverInFolder(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	path, err := tools.RequiredString(request.GetArguments(), tools.ArgPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	found, err := sc.Vault().DiscoverContextsInFolder(path)
	if err != nil {
		return tools.ErrorResult("Failed to search folder", err), nil
	}
	return tools.JSONResult(nonNil(found))
}

// patchFromArgs re-encodes the patch fields present in args so that the
// registry's own decoder tells absent fields from explicit nulls.
func patchFromArgs(args map[string]any) (registry.Patch, error) {
	fields := make(map[string]any, len(patchFields))
	for _, key := range patchFields {
		if v, ok := args[key]; ok {
			fields[key] = v
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return registry.Patch{}, err
	}
	return registry.ParsePatch(data)
}

func optionalPointer(args map[string]any, key string) *string {
	s := tools.OptionalString(args, key)
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(found []vault.DiscoveredContext) []vault.DiscoveredContext {
	if found == nil {
		return []vault.DiscoveredContext{}
	}
	return found
}
