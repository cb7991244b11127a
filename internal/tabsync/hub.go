package tabsync

import (
	"context"
	"sync"

	"github.com/wolfeidau/fitout/internal/events"
)

// Hub links channels opened in the same process. Delivery is synchronous and
// skips the publishing channel.
type Hub struct {
	mu    sync.RWMutex
	ports map[*port]struct{}
}

func NewHub() *Hub {
	return &Hub{ports: make(map[*port]struct{})}
}

// Open returns a new channel attached to the hub.
func (h *Hub) Open() Channel {
	p := &port{hub: h, listeners: events.NewBus[[]byte]()}

	h.mu.Lock()
	h.ports[p] = struct{}{}
	h.mu.Unlock()

	return p
}

// Len returns the number of open channels.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ports)
}

func (h *Hub) deliver(from *port, data []byte) {
	h.mu.RLock()
	targets := make([]*port, 0, len(h.ports))
	for p := range h.ports {
		if p != from {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range targets {
		msg := make([]byte, len(data))
		copy(msg, data)
		p.listeners.Publish(msg)
	}
}

func (h *Hub) remove(p *port) {
	h.mu.Lock()
	delete(h.ports, p)
	h.mu.Unlock()
}

type port struct {
	hub       *Hub
	listeners *events.Bus[[]byte]

	mu     sync.Mutex
	closed bool
}

func (p *port) Publish(_ context.Context, data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return ErrClosed
	}

	p.hub.deliver(p, data)
	return nil
}

func (p *port) Listen(fn func([]byte)) func() {
	return p.listeners.Subscribe(fn)
}

func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.closed = true
		p.hub.remove(p)
	}
	return nil
}
