// Package tabsync propagates login and logout between clients sharing a session
// origin, the way a browser BroadcastChannel links tabs of one site.
package tabsync

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing on a closed channel.
var ErrClosed = errors.New("channel closed")

// Channel is a broadcast medium. A publisher does not receive its own messages
// only if the implementation says so; Sync filters by origin regardless.
type Channel interface {
	Publish(ctx context.Context, data []byte) error
	Listen(fn func([]byte)) (unsubscribe func())
	Close() error
}

// Noop is used when no broadcast medium is available. Everything succeeds and
// nothing is delivered.
type Noop struct{}

var _ Channel = Noop{}

func (Noop) Publish(context.Context, []byte) error { return nil }

func (Noop) Listen(func([]byte)) func() { return func() {} }

func (Noop) Close() error { return nil }
