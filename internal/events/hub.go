package events

import (
	"net/http"
	"sync"
	"time"

	"gridcast/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// writeWait bounds how long one client may hold up a broadcast
const writeWait = 5 * time.Second

// Hub broadcasts events to connected websocket clients
type Hub struct {
	upgrader  websocket.Upgrader
	logger    *zap.Logger
	writeWait time.Duration

	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewHub creates a hub. Origin checks are left to the CORS layer.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:    logger,
		writeWait: writeWait,
		clients:   make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until it closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}
	h.add(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify writes the event to every client, dropping the ones that fail or do not
// accept the write within the deadline
func (h *Hub) Notify(e Event) {
	data, err := e.JSON()
	if err != nil {
		h.logger.Warn("Failed to serialize event", zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, c := range clients {
		c.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("Dropping websocket client", zap.Error(err))
			h.remove(c)
		}
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
	metrics.EventSubscribers.Set(0)
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	metrics.EventSubscribers.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	metrics.EventSubscribers.Set(float64(len(h.clients)))
	h.mu.Unlock()
}
