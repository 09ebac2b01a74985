// Package events carries session output to the GUI.
//
// Sessions emit Events through the Emitter interface. Two transports exist:
// Hub broadcasts JSON-encoded events to websocket clients connected to the
// HTTP listener at /events, and MCPNotifier forwards them as MCP
// notifications, which is the only channel available on the stdio transport.
// Multi combines both.
//
// Event names follow the GUI contract: "pod_event" for resource watch
// changes, "container_logs_<streamId>" for log lines, and "session_ended" or
// "session_error" when a session reaches a terminal state.
package events
