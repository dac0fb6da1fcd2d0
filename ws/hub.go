package ws

import (
	"context"
	"errors"
	"sync"
)

var ErrNoSession = errors.New("no session on this instance")

// Hub tracks the socket sessions of this instance by channel handle.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves register and unregister requests until ctx is done, then
// closes every remaining session.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.handle] = c
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if cl, ok := h.clients[c.handle]; ok && cl == c {
				delete(h.clients, c.handle)
				close(c.send)
			}
			h.mu.Unlock()
		case <-ctx.Done():
			h.mu.Lock()
			for handle, c := range h.clients {
				delete(h.clients, handle)
				close(c.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Done is closed once Run has returned and every session was closed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Push implements notify.LiveChannel for sessions held by this instance.
func (h *Hub) Push(ctx context.Context, handle string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[handle]
	if !ok {
		return ErrNoSession
	}
	return c.enqueue(payload)
}
