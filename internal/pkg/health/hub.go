package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

const (
	clientSendBuf = 64
	writeDeadline = 5 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Envelope is one WebSocket message.
type Envelope struct {
	Type string      `json:"type"` // "batch" or "status"
	Data interface{} `json:"data"`
}

// StatusView is a status event with its rendered text.
type StatusView struct {
	models.StatusEvent
	Text string `json:"text"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub is the dashboard sink: it remembers the latest batch and recent statuses
// and pushes both to connected WebSocket clients.
type Hub struct {
	*snapshotStore

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		snapshotStore: newSnapshotStore(),
		clients:       make(map[*wsClient]struct{}),
	}
}

func (h *Hub) Name() string { return "dashboard" }

func (h *Hub) PublishBatch(_ context.Context, b models.Batch) error {
	h.setBatch(b)
	return h.broadcast(Envelope{Type: "batch", Data: b})
}

func (h *Hub) PublishStatus(_ context.Context, e models.StatusEvent) error {
	h.addStatus(e)
	return h.broadcast(Envelope{Type: "status", Data: StatusView{StatusEvent: e, Text: e.Text()}})
}

// Restore seeds the latest batch, e.g. from persistent storage at startup. Nothing is broadcast.
func (h *Hub) Restore(b models.Batch) {
	h.setBatch(b)
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast enqueues msg to every client without blocking; slow clients miss messages.
func (h *Hub) broadcast(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("Dashboard client too slow, dropping message", "type", env.Type)
		}
	}
	return nil
}

// HandleWS upgrades the request and streams envelopes. A new client first receives the latest batch, if any.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, clientSendBuf),
		done: make(chan struct{}),
	}

	h.register(c)

	slog.Info("Dashboard client connected", "remote", r.RemoteAddr)

	go h.writePump(c)
	go h.readPump(c)
}

// writePump owns the connection: on exit it unregisters the client and closes the socket.
func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		h.removeClient(c)
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("Dashboard write failed", "error", err)
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only consumes pongs and close frames.
func (h *Hub) readPump(c *wsClient) {
	defer close(c.done)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// register adds c and queues the latest batch under one lock, so any broadcast
// after registration reaches c after that batch and none is missed.
func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if b, ok := h.Latest(); ok {
		if data, err := json.Marshal(Envelope{Type: "batch", Data: b}); err == nil {
			c.send <- data
		}
	}
}

func (h *Hub) removeClient(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	slog.Info("Dashboard client disconnected")
}
