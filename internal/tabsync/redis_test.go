package tabsync

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/fitout/internal/config"
	"github.com/wolfeidau/fitout/internal/models"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

func TestRedisChannel_CrossProcessBroadcast(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	chA, err := NewRedisChannel(ctx, rdb, "fitout:test")
	require.NoError(t, err)
	chB, err := NewRedisChannel(ctx, rdb, "fitout:test")
	require.NoError(t, err)

	a := New(chA, WithLogger(zerolog.Nop()))
	b := New(chB, WithLogger(zerolog.Nop()))
	defer func() {
		require.NoError(t, a.Close())
		require.NoError(t, b.Close())
	}()

	var ra, rb recorder
	a.Subscribe(ra.record)
	b.Subscribe(rb.record)

	a.BroadcastLogin(ctx, "s1", &models.User{ID: "u1", Role: models.RoleAdmin})

	require.Eventually(t, func() bool { return len(rb.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "u1", rb.Messages()[0].User.ID)
	assert.Equal(t, "s1", rb.Messages()[0].Session)

	// redis echoes to the publisher, the origin filter drops it
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ra.Messages())
}

func TestRedisChannel_PublishAfterClose(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	ch, err := NewRedisChannel(ctx, rdb, "fitout:test")
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Publish(ctx, []byte("x")), ErrClosed)
}

func TestOpen(t *testing.T) {
	mr, _ := newRedis(t)
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		s := Open(ctx, config.Default(), WithOpenLogger(zerolog.Nop()))
		_, ok := s.ch.(Noop)
		assert.True(t, ok)
	})

	t.Run("memory", func(t *testing.T) {
		hub := NewHub()
		cfg := config.Default()
		cfg.Broadcast = config.BroadcastMemory

		s := Open(ctx, cfg, WithHub(hub), WithOpenLogger(zerolog.Nop()))
		defer s.Close()
		assert.Equal(t, 1, hub.Len())
	})

	t.Run("redis", func(t *testing.T) {
		cfg := config.Default()
		cfg.Broadcast = config.BroadcastRedis
		cfg.RedisAddr = mr.Addr()

		s := Open(ctx, cfg, WithOpenLogger(zerolog.Nop()))
		_, ok := s.ch.(ownedRedisChannel)
		assert.True(t, ok)
		require.NoError(t, s.Close())
	})

	t.Run("unreachable redis degrades to noop", func(t *testing.T) {
		cfg := config.Default()
		cfg.Broadcast = config.BroadcastRedis
		cfg.RedisAddr = "127.0.0.1:1"

		s := Open(ctx, cfg, WithOpenLogger(zerolog.Nop()))
		_, ok := s.ch.(Noop)
		assert.True(t, ok)
	})
}
