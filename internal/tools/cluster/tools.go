package cluster

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kubedeck/internal/server"
	"github.com/giantswarm/kubedeck/internal/tools"
)

// RegisterClusterTools registers the cluster registry tools with the MCP server.
func RegisterClusterTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	addClusterTool := mcp.NewTool("add_cluster",
		mcp.WithDescription("Import one context of a kubeconfig file into the vault and register it as a cluster"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Display name of the cluster"),
		),
		mcp.WithString("contextName",
			mcp.Required(),
			mcp.Description("Name of the context to import from the kubeconfig"),
		),
		mcp.WithString("credentialSource",
			mcp.Required(),
			mcp.Description("Path of the kubeconfig file to import from"),
		),
		mcp.WithString("icon",
			mcp.Description("Icon reference shown by the GUI (optional)"),
		),
		mcp.WithString("description",
			mcp.Description("Free-form description (optional)"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags for grouping clusters (optional)"),
			mcp.WithStringItems(),
		),
	)
	s.AddTool(addClusterTool, tools.Wrap("add_cluster", handleAddCluster, sc))

	listClustersTool := mcp.NewTool("list_clusters",
		mcp.WithDescription("List registered clusters, most recently used first"),
	)
	s.AddTool(listClustersTool, tools.Wrap("list_clusters", handleListClusters, sc))

	getClusterTool := mcp.NewTool("get_cluster",
		mcp.WithDescription("Get a registered cluster by id"),
		mcp.WithString(tools.ArgID,
			mcp.Required(),
			mcp.Description("Cluster id"),
		),
	)
	s.AddTool(getClusterTool, tools.Wrap("get_cluster", handleGetCluster, sc))

	updateClusterTool := mcp.NewTool("update_cluster",
		mcp.WithDescription("Update the name, icon, description or tags of a cluster. Omitted fields are kept; icon and description may be set to null to clear them"),
		mcp.WithString(tools.ArgID,
			mcp.Required(),
			mcp.Description("Cluster id"),
		),
		mcp.WithString("name",
			mcp.Description("New display name (optional)"),
		),
		mcp.WithString("icon",
			mcp.Description("New icon, or null to clear (optional)"),
		),
		mcp.WithString("description",
			mcp.Description("New description, or null to clear (optional)"),
		),
		mcp.WithArray("tags",
			mcp.Description("Replacement tag list (optional)"),
			mcp.WithStringItems(),
		),
	)
	s.AddTool(updateClusterTool, tools.Wrap("update_cluster", handleUpdateCluster, sc))

	touchClusterTool := mcp.NewTool("touch_cluster",
		mcp.WithDescription("Mark a cluster as used now"),
		mcp.WithString(tools.ArgID,
			mcp.Required(),
			mcp.Description("Cluster id"),
		),
	)
	s.AddTool(touchClusterTool, tools.Wrap("touch_cluster", handleTouchCluster, sc))

	deleteClusterTool := mcp.NewTool("delete_cluster",
		mcp.WithDescription("Unregister a cluster and remove its credential file from the vault"),
		mcp.WithString(tools.ArgID,
			mcp.Required(),
			mcp.Description("Cluster id"),
		),
	)
	s.AddTool(deleteClusterTool, tools.Wrap("delete_cluster", handleDeleteCluster, sc))

	migrateTool := mcp.NewTool("migrate_legacy_credentials",
		mcp.WithDescription("Register every context found in the legacy credential directory that is not registered yet"),
	)
	s.AddTool(migrateTool, tools.Wrap("migrate_legacy_credentials", handleMigrateLegacy, sc))

	discoverFileTool := mcp.NewTool("discover_contexts_in_file",
		mcp.WithDescription("List the contexts of a kubeconfig file"),
		mcp.WithString(tools.ArgPath,
			mcp.Required(),
			mcp.Description("Path of the kubeconfig file"),
		),
	)
	s.AddTool(discoverFileTool, tools.Wrap("discover_contexts_in_file", handleDiscoverInFile, sc))

	discoverFolderTool := mcp.NewTool("discover_contexts_in_folder",
		mcp.WithDescription("Search a folder recursively for kubeconfig files and list their contexts"),
		mcp.WithString(tools.ArgPath,
			mcp.Required(),
			mcp.Description("Folder to search"),
		),
	)
	s.AddTool(discoverFolderTool, tools.Wrap("discover_contexts_in_folder", handleDiscoverInFolder, sc))

	return nil
}
