// Package events carries in-process signals between the layers of the session core.
//
// The HTTP layer only ever publishes; the state owner subscribes. Nothing published
// here causes navigation on its own.
package events

import "sync"

// SessionExpired is published when the API reports that the session is dead
// (expired, revoked, hijack detected, or the refresh token was rejected).
type SessionExpired struct {
	Reason string
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// Bus is a synchronous observer list. Handlers run on the publisher's goroutine
// in subscription order, outside the bus lock, so a handler may unsubscribe itself.
type Bus[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription[T]
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers fn and returns a function removing it again.
// The returned function is safe to call more than once.
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to every current subscriber.
func (b *Bus[T]) Publish(ev T) {
	b.mu.RLock()
	subs := make([]subscription[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
