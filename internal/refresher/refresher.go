// Package refresher renews the session on a fixed interval so an active user is
// never interrupted by an expired access token.
package refresher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/fitout/internal/apierror"
	"github.com/wolfeidau/fitout/internal/client"
	"github.com/wolfeidau/fitout/internal/config"
)

// Refresher performs one refresh, returning client.ErrRefreshInFlight when
// another refresh already holds the shared gate.
type Refresher interface {
	TryRefresh(ctx context.Context) error
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithOnRefresh registers fn to run after every successful scheduled refresh.
func WithOnRefresh(fn func(ctx context.Context)) Option {
	return func(s *Service) { s.onRefresh = fn }
}

// Service is either stopped or running with one armed timer.
type Service struct {
	refresher      Refresher
	interval       time.Duration
	maxRetries     int
	backoffInitial time.Duration
	backoffMax     time.Duration
	onRefresh      func(ctx context.Context)
	logger         zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	gen     uint64
	retries int
}

// New creates a stopped Service.
func New(r Refresher, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		refresher:      r,
		interval:       cfg.RefreshInterval,
		maxRetries:     cfg.MaxRetries,
		backoffInitial: cfg.BackoffInitial,
		backoffMax:     cfg.BackoffMax,
		logger:         log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the refresh timer, replacing any timer already armed. It does not
// refresh immediately.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s.gen++
	s.cancel = cancel

	go s.run(ctx, s.gen)

	s.logger.Debug().Dur("interval", s.interval).Msg("refresh service started")
}

// Stop disarms the timer and resets the retry counter. Safe to call when stopped.
// An in-flight refresh is cancelled; Stop does not wait for it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.logger.Debug().Msg("refresh service stopped")
	}
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.retries = 0
}

// Running reports whether the timer is armed.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Retries returns the number of consecutive failed refreshes.
func (s *Service) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// RefreshNow resets the retry counter and refreshes immediately. Failures are
// only logged; a dead session surfaces through the next API call.
func (s *Service) RefreshNow(ctx context.Context) {
	s.mu.Lock()
	s.retries = 0
	s.mu.Unlock()

	if err := s.refresher.TryRefresh(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("on demand refresh failed")
	}
}

func (s *Service) run(ctx context.Context, gen uint64) {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     s.backoffInitial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         s.backoffMax,
	}
	bo.Reset()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next, ok := s.tick(ctx, gen, bo)
		if !ok {
			return
		}
		timer.Reset(next)
	}
}

// tick runs one refresh and returns the delay until the next one, or false
// when the service must not reschedule.
func (s *Service) tick(ctx context.Context, gen uint64, bo *backoff.ExponentialBackOff) (time.Duration, bool) {
	err := s.refresher.TryRefresh(ctx)

	switch {
	case err == nil:
		s.setRetries(gen, 0)
		bo.Reset()
		if s.onRefresh != nil {
			s.onRefresh(ctx)
		}
		return s.interval, true

	case errors.Is(err, client.ErrRefreshInFlight):
		s.logger.Debug().Msg("refresh already in flight, skipping cycle")
		return s.interval, true

	case ctx.Err() != nil:
		return 0, false

	case apierror.IsUnauthorized(err):
		s.logger.Info().Err(err).Msg("refresh rejected, stopping refresh service")
		s.halt(gen)
		return 0, false
	}

	retries, ok := s.incRetries(gen)
	if !ok {
		return 0, false
	}

	if retries > s.maxRetries {
		s.logger.Error().Err(err).Int("retries", retries-1).Msg("refresh failed, giving up")
		s.halt(gen)
		return 0, false
	}

	delay := bo.NextBackOff()
	s.logger.Warn().Err(err).Int("retry", retries).Dur("delay", delay).Msg("refresh failed, retrying")

	return delay, true
}

// halt stops the service if gen is still the current run.
func (s *Service) halt(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen == gen {
		s.stopLocked()
	}
}

func (s *Service) setRetries(gen uint64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen == gen {
		s.retries = n
	}
}

func (s *Service) incRetries(gen uint64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.cancel == nil {
		return 0, false
	}
	s.retries++
	return s.retries, true
}
