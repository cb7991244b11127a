package client

import "sync"

// tokenHolder keeps the last value seen in memory only. It is best effort:
// an empty holder never blocks a request.
type tokenHolder struct {
	mu    sync.RWMutex
	token string
}

func (h *tokenHolder) Get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Rotate replaces the held value; empty values are ignored.
func (h *tokenHolder) Rotate(token string) {
	if token == "" {
		return
	}
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// Set replaces the held value, clearing it when v is empty.
func (h *tokenHolder) Set(v string) {
	h.mu.Lock()
	h.token = v
	h.mu.Unlock()
}

func (h *tokenHolder) Clear() {
	h.mu.Lock()
	h.token = ""
	h.mu.Unlock()
}
