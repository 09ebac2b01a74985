// Package cluster provides the MCP tools that manage the cluster registry:
// importing a context from a kubeconfig into the vault, listing, editing and
// removing registered clusters, migrating legacy credential files and
// discovering contexts on disk.
//
// Registry tools never contact a cluster and are available in read-only
// mode. Editing or deleting a cluster drops its cached clients so the next
// session resolves fresh credentials.
package cluster
