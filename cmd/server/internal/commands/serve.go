package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfeidau/fitout/internal/client"
	"github.com/wolfeidau/fitout/internal/logger"
	"github.com/wolfeidau/fitout/internal/mockapi"
	"github.com/wolfeidau/fitout/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"127.0.0.1:8080" env:"FITOUT_API_LISTEN"`
	Cert   string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"FITOUT_API_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"FITOUT_API_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"FITOUT_API_CORS_ORIGINS"`

	// Session configuration
	SigningSecret string        `help:"HMAC secret for access tokens, random when empty" default:"" env:"FITOUT_API_SIGNING_SECRET"`
	AccessTTL     time.Duration `help:"access token lifetime" default:"5m" env:"FITOUT_API_ACCESS_TTL"`
	SessionTTL    time.Duration `help:"sliding session lifetime" default:"30m" env:"FITOUT_API_SESSION_TTL"`
	RememberMeTTL time.Duration `help:"session lifetime when remember me is set" default:"720h" env:"FITOUT_API_REMEMBER_ME_TTL"`
	SecureCookies bool          `help:"mark session cookies Secure" default:"false" env:"FITOUT_API_SECURE_COOKIES"`
	Janitor       time.Duration `help:"interval between expired session sweeps" default:"1m" env:"FITOUT_API_JANITOR_INTERVAL"`

	// Seed data
	SeedFile string `help:"YAML file with seed users and roles" type:"existingfile" env:"FITOUT_API_SEED_FILE"`

	Tracing bool `help:"enable tracing" default:"false" env:"FITOUT_API_TRACING"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting mock API")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		providers, err := telemetry.Start(log.WithContext(ctx), telemetry.Config{
			ServiceName: "fitout-api",
			Version:     globals.Version,
			Component:   "api",
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	opts, err := c.serverOptions(log)
	if err != nil {
		return err
	}

	api, err := mockapi.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create mock API: %w", err)
	}

	handler, err := newHandler(api.Handler(), c.CORSOrigins, log, c.Tracing)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go api.RunJanitor(ctx, c.Janitor)

	srv := configureHTTPServer(c.Listen, handler)

	return serve(ctx, srv, c.Cert, c.Key, log)
}

func (c *ServeCmd) serverOptions(log zerolog.Logger) ([]mockapi.Option, error) {
	if (c.Cert == "") != (c.Key == "") {
		return nil, errors.New("TLS certificate and key must be provided together (--cert and --key)")
	}

	opts := []mockapi.Option{
		mockapi.WithLogger(log),
		mockapi.WithAccessTTL(c.AccessTTL),
		mockapi.WithSessionTTL(c.SessionTTL),
		mockapi.WithRememberMeTTL(c.RememberMeTTL),
		mockapi.WithSecureCookies(c.SecureCookies),
	}

	if c.SigningSecret != "" {
		opts = append(opts, mockapi.WithSigningSecret([]byte(c.SigningSecret)))
	} else {
		log.Warn().Msg("No signing secret configured, sessions will not survive a restart")
	}

	if c.SeedFile != "" {
		seed, err := mockapi.LoadSeed(c.SeedFile)
		if err != nil {
			return nil, err
		}
		log.Info().Str("file", c.SeedFile).Int("users", len(seed.Users)).Int("roles", len(seed.Roles)).Msg("Loaded seed data")
		opts = append(opts, mockapi.WithSeed(seed))
	}

	return opts, nil
}

// newHandler wraps the API routes with request logging, cross-origin request
// protection and CORS for the configured browser origins.
func newHandler(api http.Handler, origins []string, log zerolog.Logger, tracing bool) (http.Handler, error) {
	protection := csrf.New()
	for _, origin := range origins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid CORS origin %q: %w", origin, err)
		}
	}

	handler := withCORS(origins, protection.Handler(api))
	handler = logger.HTTPRequests(log)(handler)

	if tracing {
		handler = otelhttp.NewHandler(handler, "fitout-api")
	}

	return handler, nil
}

// withCORS lets browser origins call the API with cookies and read the CSRF header.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Accept", client.HeaderCSRF},
		ExposedHeaders:   []string{client.HeaderCSRF},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}
