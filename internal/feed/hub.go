// Package feed pushes fired signals to WebSocket subscribers. The hub
// implements the notifier contract: every committed transition is
// broadcast as a JSON envelope, and a new client first receives the
// recent-signal backlog so it can render without waiting.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradesignals/internal/model"
)

const backlogSize = 50

// Hub manages WebSocket clients and signal fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	backlog []json.RawMessage

	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Notify broadcasts a fired signal to every connected client.
func (h *Hub) Notify(_ context.Context, sig model.Signal) error {
	envelope, err := json.Marshal(map[string]interface{}{
		"type":   "signal",
		"signal": sig,
		"ts":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.backlog = append(h.backlog, envelope)
	if len(h.backlog) > backlogSize {
		h.backlog = h.backlog[len(h.backlog)-backlogSize:]
	}
	for c := range h.clients {
		select {
		case c.send <- envelope:
		default:
			// Slow consumer: drop the frame rather than stall the hub.
		}
	}
	h.mu.Unlock()
	return nil
}

// ServeHTTP upgrades the connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[feed] ws upgrade failed: %v", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	backlog := make([]json.RawMessage, len(h.backlog))
	copy(backlog, h.backlog)
	h.mu.Unlock()

	log.Printf("[feed] ws client connected (%d total)", count)

	go c.writePump(backlog)
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}
