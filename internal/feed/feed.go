// Package feed fans out incident and decision traffic to connected
// dashboard clients over WebSocket — a read-only observability surface,
// never a control path (approvals stay on internal/approval's HTTP admin
// routes). Adapted from kubilitics-backend/internal/api/websocket's
// Hub/Client broadcast pattern, trimmed to this tree's single unauthenticated
// broadcast channel instead of that teacher's per-client filters and auth
// claims — the admin HTTP surface is the gate, this feed is read-only.
package feed

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendBuf  = 64
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks connected clients and broadcasts messages to all of them.
type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	broadcast chan []byte
}

// New constructs a Hub. Call Run in a goroutine before serving connections.
func New(log *zap.Logger) *Hub {
	return &Hub{
		log:       log,
		clients:   make(map[*client]bool),
		broadcast: make(chan []byte, 256),
	}
}

// Publish enqueues raw for delivery to every connected client. Never blocks
// the caller — a full broadcast buffer drops the message and logs it, since
// this feed is best-effort observability, not a delivery-guaranteed bus.
func (h *Hub) Publish(raw []byte) {
	select {
	case h.broadcast <- raw:
	default:
		h.log.Warn("feed: broadcast buffer full, dropping message")
	}
}

// Run drains the broadcast channel until done is closed.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("feed: client buffer full, disconnecting")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) removeLocked(c *client) {
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers it
// with the hub until the peer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("feed: upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientSendBuf)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go c.writePump()
	go h.readPumpDiscard(c)
}

// readPumpDiscard drains and discards anything the client sends — this feed
// is one-directional, but the peer's pong frames still need reading to keep
// the connection alive and to detect disconnect.
func (h *Hub) readPumpDiscard(c *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
