// Package websocket pushes sync events to connected dashboard clients.
package websocket

import (
	"context"
	"sync"

	"github.com/rentalsync/backend/internal/logger"
)

type delivery struct {
	ownerID string
	data    []byte
}

// Hub maintains the set of active WebSocket clients and routes messages to
// the clients of one owner.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu  sync.RWMutex
	log *logger.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the hub's main event loop until ctx is cancelled.
// This should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("websocket client connected", "owner_id", client.ownerID, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("websocket client disconnected", "owner_id", client.ownerID, "total", total)

		case d := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.ownerID != d.ownerID {
					continue
				}
				if !client.Enqueue(d.data) {
					// Send buffer full, drop the slow client
					client.close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues a message for every client of ownerID.
func (h *Hub) Publish(ownerID string, message []byte) {
	select {
	case h.broadcast <- delivery{ownerID: ownerID, data: message}:
	default:
		h.log.Warn("websocket broadcast channel full, dropping message", "owner_id", ownerID)
	}
}

// Register adds a client to the hub. Once the hub has stopped the client
// is closed immediately.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client represents a WebSocket client connection bound to one owner.
type Client struct {
	hub     *Hub
	ownerID string
	send    chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, ownerID string) *Client {
	return &Client{
		hub:     hub,
		ownerID: ownerID,
		send:    make(chan []byte, 256),
	}
}

// Send returns the send channel for the client.
func (c *Client) Send() chan []byte {
	return c.send
}

// OwnerID returns the owner the client was authenticated as.
func (c *Client) OwnerID() string {
	return c.ownerID
}

// Enqueue queues a message without blocking. It reports false when the
// client is closed or its buffer is full.
func (c *Client) Enqueue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
