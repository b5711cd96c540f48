// Package websocket pushes state snapshots to connected presentation
// clients. Every connection receives the full state on connect and again
// after every change.
package websocket

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Message types
const (
	TypeConnected   = "CONNECTION_ESTABLISHED"
	TypeState       = "STATE"
	TypePreferences = "PREFERENCES"
)

// Message is the envelope of every frame sent to clients
type Message struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Encode marshals a message of the given type stamped with the current time
func Encode(msgType string, data interface{}) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Timestamp: time.Now().Unix(), Data: data})
}

// Hub tracks live connections and fans frames out to them
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	count      chan chan int
	done       chan struct{}

	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates a hub; call Run to start it
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		logger:     logger,
	}
}

// Run serves the hub until ctx is done, then closes every connection
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
		}
		h.clients = map[*Client]struct{}{}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("Client registered", zap.String("connectionID", c.id), zap.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Debug("Client unregistered", zap.String("connectionID", c.id), zap.Int("clients", len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// too slow to keep up; it reconnects and gets a fresh snapshot
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("Dropping slow websocket client", zap.String("connectionID", c.id))
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// add registers c; it reports false once the hub has stopped
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues msg for every client without blocking the caller. When
// the queue is full the oldest queued frame is discarded so the newest
// snapshot always goes out.
func (h *Hub) Broadcast(msg []byte) {
	for {
		select {
		case h.broadcast <- msg:
			return
		default:
		}

		select {
		case <-h.broadcast:
			h.logger.Warn("Websocket broadcast queue full, dropping oldest frame")
		default:
		}
	}
}

// Count returns the number of registered clients
func (h *Hub) Count(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.done:
		return 0
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}
