package tabsync

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/fitout/internal/config"
)

const pingTimeout = 5 * time.Second

var processHub = NewHub()

type openOptions struct {
	hub    *Hub
	logger zerolog.Logger
}

type OpenOption func(*openOptions)

// WithHub attaches memory channels to h instead of the process wide hub.
func WithHub(h *Hub) OpenOption {
	return func(o *openOptions) { o.hub = h }
}

func WithOpenLogger(logger zerolog.Logger) OpenOption {
	return func(o *openOptions) { o.logger = logger }
}

// Open builds a Sync on the backend named in cfg. A redis backend that cannot
// be reached degrades to Noop; single client operation never depends on it.
func Open(ctx context.Context, cfg config.Config, opts ...OpenOption) *Sync {
	o := openOptions{hub: processHub, logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.Broadcast {
	case config.BroadcastMemory:
		return New(o.hub.Open(), WithLogger(o.logger))

	case config.BroadcastRedis:
		ch, err := openRedis(ctx, cfg)
		if err != nil {
			o.logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("session broadcast unavailable, continuing without it")
			return New(Noop{}, WithLogger(o.logger))
		}
		return New(ch, WithLogger(o.logger))

	default:
		return New(Noop{}, WithLogger(o.logger))
	}
}

// ownedRedisChannel closes the client it created along with the channel.
type ownedRedisChannel struct {
	*RedisChannel
	rdb *redis.Client
}

func (c ownedRedisChannel) Close() error {
	err := c.RedisChannel.Close()
	if cerr := c.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}

func openRedis(ctx context.Context, cfg config.Config) (Channel, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	ch, err := NewRedisChannel(ctx, rdb, cfg.BroadcastChannel)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return ownedRedisChannel{RedisChannel: ch, rdb: rdb}, nil
}
