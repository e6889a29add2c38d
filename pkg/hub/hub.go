package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/posture-guard/internal/log"
)

// Hub fans session updates out to watchers. Run owns the client set;
// everything else talks to it over channels.
type Hub struct {
	name string

	mu      sync.RWMutex
	clients map[*Client]struct{}

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns

	running atomic.Bool
	dropped atomic.Uint64
}

// New creates a hub. name only appears in logs.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every watcher.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			n := h.closeAll()
			log.Info("hub stopped", "hub", h.name, "closed", n)
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	log.Info("watcher connected", "hub", h.name, "watcher", c.id, "session", c.Session(), "total", count)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		log.Info("watcher disconnected", "hub", h.name, "watcher", c.id, "sent", c.Sent(), "remaining", count)
	}
}

// fanout delivers msg to matching watchers. A watcher whose buffer is full
// is disconnected.
func (h *Hub) fanout(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
			log.Warn("dropped slow watcher", "hub", h.name, "watcher", c.id)
		}
	}
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	return n
}

// Broadcast queues a message for all matching watchers. It never blocks.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		log.Debug("broadcast channel full, dropping message", "hub", h.name)
	}
}

// Publish encodes v and broadcasts it to watchers of sessionID
func (h *Hub) Publish(sessionID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewSessionMessage(sessionID, data))
	return nil
}

// ClientCount returns the number of connected watchers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded on a full queue
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
