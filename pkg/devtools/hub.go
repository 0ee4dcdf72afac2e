package devtools

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/viewstate/pkg/telemetry"
)

// EventType identifies a devtools message.
type EventType string

const (
	// EventFlush carries one binding flush.
	EventFlush EventType = "flush"
	// EventReset tells clients to drop what they have shown so far.
	EventReset EventType = "reset"
)

// Event is sent to devtools clients over the WebSocket.
type Event struct {
	Type EventType `json:"type"`

	// Replay is set on events a client receives from the backlog on connect.
	Replay bool `json:"replay,omitempty"`

	Flush *telemetry.DebugInfo `json:"flush,omitempty"`
	Note  string               `json:"note,omitempty"`
}

type client struct {
	conn *websocket.Conn
	// wmu serializes writes; a websocket.Conn supports one writer.
	wmu sync.Mutex
}

func (c *client) write(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub streams binding flushes to connected devtools clients and keeps a
// bounded backlog that is replayed to new connections.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	recent   []telemetry.DebugInfo
	size     int
	next     int
	full     bool
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates a hub that remembers the last size flushes. size <= 0
// disables the backlog.
func NewHub(size int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if size < 0 {
		size = 0
	}
	return &Hub{
		clients: make(map[*client]bool),
		recent:  make([]telemetry.DebugInfo, size),
		size:    size,
		logger:  logger.With("component", "devtools"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool
			},
		},
	}
}

// Hook returns a DebugHook that publishes to the hub.
func (h *Hub) Hook() telemetry.DebugHook {
	return h.Publish
}

// Publish records a flush and sends it to every client.
func (h *Hub) Publish(info telemetry.DebugInfo) {
	h.mu.Lock()
	if h.size > 0 {
		h.recent[h.next] = info
		h.next = (h.next + 1) % h.size
		if h.next == 0 {
			h.full = true
		}
	}
	h.mu.Unlock()

	h.broadcast(Event{Type: EventFlush, Flush: &info})
}

// Reset clears the backlog and tells clients to do the same.
func (h *Hub) Reset(note string) {
	h.mu.Lock()
	h.next = 0
	h.full = false
	h.mu.Unlock()

	h.broadcast(Event{Type: EventReset, Note: note})
}

// Recent returns the backlog, oldest first.
func (h *Hub) Recent() []telemetry.DebugInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.recentLocked()
}

func (h *Hub) recentLocked() []telemetry.DebugInfo {
	if !h.full {
		return append([]telemetry.DebugInfo(nil), h.recent[:h.next]...)
	}
	out := make([]telemetry.DebugInfo, 0, h.size)
	out = append(out, h.recent[h.next:]...)
	return append(out, h.recent[:h.next]...)
}

// HandleWebSocket upgrades the request, replays the backlog and keeps the
// connection registered until the client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}

	// Register and take the write lock before releasing the hub, so the
	// backlog reaches the client ahead of any live event.
	h.mu.Lock()
	backlog := h.recentLocked()
	h.clients[c] = true
	c.wmu.Lock()
	h.mu.Unlock()

	for i := range backlog {
		data, err := json.Marshal(Event{Type: EventFlush, Replay: true, Flush: &backlog[i]})
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	c.wmu.Unlock()
	h.logger.Debug("devtools client connected", "remote", req.RemoteAddr, "replayed", len(backlog))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.drop(c)
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("devtools event not encodable", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}
