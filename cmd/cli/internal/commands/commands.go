package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/fitout/internal/auth"
	"github.com/wolfeidau/fitout/internal/client"
	"github.com/wolfeidau/fitout/internal/config"
	"github.com/wolfeidau/fitout/internal/events"
	"github.com/wolfeidau/fitout/internal/logger"
	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/refresher"
	"github.com/wolfeidau/fitout/internal/tabsync"
	"github.com/wolfeidau/fitout/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Version string
	Stdout  io.Writer
}

func (g *Globals) out() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// SessionFlags are shared by every command that signs in.
type SessionFlags struct {
	config.Config `embed:""`

	Email    string `help:"account email" env:"FITOUT_EMAIL" required:""`
	Password string `help:"account password" env:"FITOUT_PASSWORD" required:""`
	Tracing  bool   `help:"enable tracing" default:"false" env:"FITOUT_TRACING"`
}

// setup creates the command logger and, when tracing is enabled, the
// telemetry providers. The returned func flushes telemetry.
func (f *SessionFlags) setup(ctx context.Context, globals *Globals) (context.Context, zerolog.Logger, func()) {
	log := logger.Setup(globals.Debug)
	ctx = log.WithContext(ctx)

	if !f.Tracing {
		return ctx, log, func() {}
	}

	log.Info().Msg("Tracing is enabled")
	providers, err := telemetry.Start(ctx, telemetry.Config{
		ServiceName: "fitout-cli",
		Version:     globals.Version,
		Component:   "cli",
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return ctx, log, func() {}
	}

	return ctx, log, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

// session is the client side session stack: API client, refresh timer,
// broadcast channel and the provider that owns the user.
type session struct {
	client   *client.Client
	refresh  *refresher.Service
	bcast    *tabsync.Sync
	provider *auth.Provider
	log      zerolog.Logger
}

func openSession(ctx context.Context, flags *SessionFlags, log zerolog.Logger, opts ...client.Option) (*session, error) {
	bus := events.NewBus[events.SessionExpired]()

	clientOpts := []client.Option{client.WithLogger(log)}
	if flags.Tracing {
		clientOpts = append(clientOpts, client.WithTracing())
	}
	clientOpts = append(clientOpts, opts...)

	c, err := client.New(flags.Config, bus, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	bcast := tabsync.Open(ctx, flags.Config, tabsync.WithOpenLogger(log))
	svc := refresher.New(c, flags.Config,
		refresher.WithLogger(log),
		refresher.WithOnRefresh(bcast.RefreshNotifier(c.SessionID)),
	)
	provider := auth.NewProvider(c, svc, bcast, bus, auth.WithLogger(log))

	return &session{client: c, refresh: svc, bcast: bcast, provider: provider, log: log}, nil
}

// signIn resolves the initial session check, then logs in.
func (s *session) signIn(ctx context.Context, email, password string, rememberMe bool) (*models.User, error) {
	s.provider.Init(ctx)

	user, err := s.provider.Login(ctx, email, password, rememberMe)
	if err != nil {
		return nil, fmt.Errorf("failed to log in as %s: %w", email, err)
	}
	return user, nil
}

// Close logs out when a user is still signed in and releases the session stack.
func (s *session) Close(ctx context.Context) {
	if s.provider.IsAuthenticated() {
		s.provider.Logout(ctx)
	}
	_ = s.provider.Close()
	if err := s.bcast.Close(); err != nil {
		s.log.Debug().Err(err).Msg("failed to close broadcast channel")
	}
}
