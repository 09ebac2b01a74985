package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultEventsPath is where the Hub is mounted on the HTTP listener.
const DefaultEventsPath = "/events"

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size accepted from the peer. Clients only send
	// control frames.
	maxMessageSize = 4 * 1024

	defaultSendBuffer = 256
)

// HubConfig configures a Hub.
type HubConfig struct {
	// AllowedOrigins lists the origins (scheme://host[:port]) allowed to
	// connect. "*" allows any origin. Requests without an Origin header are
	// not browsers and are always accepted.
	AllowedOrigins []string

	// SendBuffer is the per-client queue length. A client whose queue is
	// full is disconnected.
	//
	// Default: 256.
	SendBuffer int

	// WriteWait bounds a single write to a client.
	//
	// Default: 10 seconds.
	WriteWait time.Duration

	// PongWait is how long a client may stay silent. Pings are sent at 9/10
	// of this period.
	//
	// Default: 60 seconds.
	PongWait time.Duration
}

// ConnectionMetrics receives client connection events.
type ConnectionMetrics interface {
	EventClientConnected(ctx context.Context)
	EventClientDisconnected(ctx context.Context)
}

type noopConnectionMetrics struct{}

func (noopConnectionMetrics) EventClientConnected(context.Context)    {}
func (noopConnectionMetrics) EventClientDisconnected(context.Context) {}

// Hub broadcasts events to websocket clients. It implements both Emitter and
// http.Handler.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	config   HubConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  ConnectionMetrics
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubConfig sets the hub configuration.
func WithHubConfig(config HubConfig) HubOption {
	return func(h *Hub) {
		h.config = config
	}
}

// WithHubLogger sets the logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithHubMetrics sets the connection metrics recorder.
func WithHubMetrics(metrics ConnectionMetrics) HubOption {
	return func(h *Hub) {
		if metrics != nil {
			h.metrics = metrics
		}
	}
}

// NewHub creates a Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		logger:  slog.Default(),
		metrics: noopConnectionMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.config.SendBuffer <= 0 {
		h.config.SendBuffer = defaultSendBuffer
	}
	if h.config.WriteWait <= 0 {
		h.config.WriteWait = defaultWriteWait
	}
	if h.config.PongWait <= 0 {
		h.config.PongWait = defaultPongWait
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	normalized := strings.ToLower(u.Scheme + "://" + u.Host)

	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.ToLower(strings.TrimSuffix(allowed, "/")) == normalized {
			return true
		}
	}

	// Same-origin requests are always fine.
	return strings.EqualFold(u.Host, r.Host)
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		h.logger.Debug("Websocket upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.config.SendBuffer),
	}

	if !h.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}

	h.logger.Debug("Event client connected", "client_id", c.id, "remote_addr", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.EventClientConnected(context.Background())
	return true
}

// unregister removes c and closes its queue. It reports whether c was still
// registered, so the queue is closed exactly once.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.EventClientDisconnected(context.Background())
	return true
}

// Emit broadcasts e to every connected client without blocking. Clients
// whose queue is full are disconnected.
func (h *Hub) Emit(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %q: %w", e.Name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.removeLocked(c)
			h.logger.Warn("Dropped slow event client", "client_id", c.id)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. Later Emit calls return ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	return nil
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards client messages and keeps the read deadline alive via
// pongs. It unregisters the client when the connection fails.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	pongWait := c.hub.config.PongWait
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("Event client read failed", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

// writePump writes queued events, one websocket message each, and sends
// periodic pings. It exits when the queue is closed or a write fails.
func (c *client) writePump() {
	writeWait := c.hub.config.WriteWait
	ticker := time.NewTicker(c.hub.config.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.unregister(c)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		}
	}
}
