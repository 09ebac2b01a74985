package events

import "context"

// NotificationMethod is the MCP notification carrying GUI events.
const NotificationMethod = "notifications/kubedeck/event"

// NotificationSender is the part of the MCP server used by MCPNotifier.
type NotificationSender interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// MCPNotifier forwards events to every connected MCP client as
// notifications. It is the event channel on the stdio transport, where no
// websocket listener exists.
type MCPNotifier struct {
	sender NotificationSender
}

// NewMCPNotifier returns an emitter over sender, typically the
// *server.MCPServer.
func NewMCPNotifier(sender NotificationSender) *MCPNotifier {
	return &MCPNotifier{sender: sender}
}

// Emit sends e as a notification.
func (n *MCPNotifier) Emit(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := map[string]any{
		"name":    e.Name,
		"session": e.Session,
		"data":    e.Data,
	}
	if e.ClusterID != "" {
		params["clusterId"] = e.ClusterID
	}
	if e.Type != "" {
		params["type"] = e.Type
	}

	n.sender.SendNotificationToAllClients(NotificationMethod, params)
	return nil
}
