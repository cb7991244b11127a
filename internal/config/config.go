// Package config holds the client configuration shared by the HTTP client,
// the refresh service and the broadcast channel.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// SessionLifetime is the server's sliding session lifetime. The refresh
// interval must stay below it.
const SessionLifetime = 30 * time.Minute

// Broadcast backends.
const (
	BroadcastNone   = "none"
	BroadcastMemory = "memory"
	BroadcastRedis  = "redis"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is embedded into kong commands, the tags double as flag definitions.
type Config struct {
	BaseURL string        `help:"API base URL" default:"http://localhost:8080" env:"FITOUT_API_URL" name:"api-url"`
	Timeout time.Duration `help:"per request timeout" default:"30s" env:"FITOUT_TIMEOUT"`

	// Refresh policy
	RefreshInterval time.Duration `help:"interval between proactive session refreshes" default:"25m" env:"FITOUT_REFRESH_INTERVAL"`
	MaxRetries      int           `help:"refresh retries before the refresher gives up" default:"3" env:"FITOUT_REFRESH_MAX_RETRIES"`
	BackoffInitial  time.Duration `help:"first refresh retry delay" default:"1s" env:"FITOUT_REFRESH_BACKOFF_INITIAL"`
	BackoffMax      time.Duration `help:"refresh retry delay cap" default:"30s" env:"FITOUT_REFRESH_BACKOFF_MAX"`

	SessionCheckInterval time.Duration `help:"interval between session revalidation checks" default:"5m" env:"FITOUT_SESSION_CHECK_INTERVAL"`
	CacheResponses       bool          `help:"cache cacheable GET responses in memory" default:"false" env:"FITOUT_CACHE_RESPONSES"`

	// Session sync between clients
	Broadcast        string `help:"session broadcast backend" default:"none" enum:"none,memory,redis" env:"FITOUT_BROADCAST"`
	RedisAddr        string `help:"redis address for the redis broadcast backend" default:"" env:"FITOUT_REDIS_ADDR"`
	BroadcastChannel string `help:"broadcast channel name" default:"fitout:session" env:"FITOUT_BROADCAST_CHANNEL"`
}

// Default returns the configuration matching the flag defaults.
func Default() Config {
	return Config{
		BaseURL:              "http://localhost:8080",
		Timeout:              30 * time.Second,
		RefreshInterval:      25 * time.Minute,
		MaxRetries:           3,
		BackoffInitial:       time.Second,
		BackoffMax:           30 * time.Second,
		SessionCheckInterval: 5 * time.Minute,
		Broadcast:            BroadcastNone,
		BroadcastChannel:     "fitout:session",
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || c.BaseURL == "" {
		return fmt.Errorf("%w: api url %q is not a valid URL", ErrInvalidConfig, c.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: api url must use http or https, got %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: api url %q has no host", ErrInvalidConfig, c.BaseURL)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"timeout", c.Timeout},
		{"refresh interval", c.RefreshInterval},
		{"backoff initial", c.BackoffInitial},
		{"backoff max", c.BackoffMax},
		{"session check interval", c.SessionCheckInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be greater than 0", ErrInvalidConfig, d.name)
		}
	}

	if c.RefreshInterval >= SessionLifetime {
		return fmt.Errorf("%w: refresh interval %s must be shorter than the session lifetime %s",
			ErrInvalidConfig, c.RefreshInterval, SessionLifetime)
	}
	if c.BackoffMax < c.BackoffInitial {
		return fmt.Errorf("%w: backoff max must not be less than backoff initial", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}

	switch c.Broadcast {
	case "", BroadcastNone, BroadcastMemory:
	case BroadcastRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis broadcast requires a redis address", ErrInvalidConfig)
		}
		if c.BroadcastChannel == "" {
			return fmt.Errorf("%w: redis broadcast requires a channel name", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown broadcast backend %q", ErrInvalidConfig, c.Broadcast)
	}

	return nil
}
