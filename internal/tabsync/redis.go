package tabsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wolfeidau/fitout/internal/events"
)

// RedisChannel broadcasts over a redis pub/sub channel so separate processes
// share session changes. Redis echoes messages back to the publisher.
type RedisChannel struct {
	rdb       redis.UniversalClient
	name      string
	pubsub    *redis.PubSub
	listeners *events.Bus[[]byte]
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ Channel = (*RedisChannel)(nil)

// NewRedisChannel subscribes to name and returns once the subscription is confirmed.
func NewRedisChannel(ctx context.Context, rdb redis.UniversalClient, name string) (*RedisChannel, error) {
	pubsub := rdb.Subscribe(ctx, name)

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", name, err)
	}

	c := &RedisChannel{
		rdb:       rdb,
		name:      name,
		pubsub:    pubsub,
		listeners: events.NewBus[[]byte](),
		done:      make(chan struct{}),
	}

	go c.receive(pubsub.Channel())

	return c, nil
}

func (c *RedisChannel) receive(ch <-chan *redis.Message) {
	defer close(c.done)

	for msg := range ch {
		c.listeners.Publish([]byte(msg.Payload))
	}
}

func (c *RedisChannel) Publish(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if err := c.rdb.Publish(ctx, c.name, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", c.name, err)
	}
	return nil
}

func (c *RedisChannel) Listen(fn func([]byte)) func() {
	return c.listeners.Subscribe(fn)
}

// Close unsubscribes and waits for the receive loop to exit. The redis client is
// left open for its owner.
func (c *RedisChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.pubsub.Close()
		<-c.done
	})
	return c.closeErr
}
