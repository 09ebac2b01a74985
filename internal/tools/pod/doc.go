// Package pod provides the MCP tools that work on pods of a registered
// cluster: one-shot listings (namespaces, pods, pod events), pod deletion
// and the long-running sessions.
//
// Sessions are pod watches and log tails run by the supervisor. Starting one
// resolves the cluster client first, so connection problems are reported by
// the tool call itself; afterwards everything the session produces, including
// its end, arrives on the event channel.
package pod
