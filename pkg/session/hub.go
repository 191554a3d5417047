package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const write_wait = 5 * time.Second

// Websocket viewers of one session. Writes happen under the hub
// lock since a connection supports only one concurrent writer
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger,
	}
}

// Sends the backlog to the new client before it sees any broadcast
func (h *Hub) Register(conn *websocket.Conn, backlog []Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		conn.Close()
		return ERR_CLOSED
	}
	for _, m := range backlog {
		if err := write(conn, m); err != nil {
			conn.Close()
			return err
		}
	}
	h.clients[conn] = struct{}{}
	h.logger.Debug("Client connected", "total", len(h.clients))
	return nil
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		h.logger.Debug("Client disconnected", "total", len(h.clients))
	}
}

// Clients that fail to receive are dropped
func (h *Hub) Broadcast(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := write(conn, m); err != nil {
			h.logger.Warn("Error sending message", "error", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.clients {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
			time.Now().Add(write_wait))
		conn.Close()
	}
	clear(h.clients)
}

func write(conn *websocket.Conn, m Message) error {
	conn.SetWriteDeadline(time.Now().Add(write_wait))
	return conn.WriteJSON(m)
}
