// Package mockapi is an in-memory implementation of the fitout REST API. It
// issues the cookies, CSRF tokens and 401 codes the client reacts to, and
// exposes hooks so tests can expire, revoke or hijack a session on demand.
package mockapi

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfeidau/fitout/internal/config"
	"github.com/wolfeidau/fitout/internal/store"
	"github.com/wolfeidau/fitout/internal/store/memory"
)

// Cookie and header names.
const (
	CookieAccess  = "fitout_access"
	CookieRefresh = "fitout_refresh"
	HeaderCSRF    = "X-CSRF-Token"
)

// Codes only the mock API emits; the session codes live in apierror.
const (
	CodeCSRFInvalid        = "CSRF_INVALID"
	CodeRefreshInvalid     = "REFRESH_TOKEN_INVALID"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeValidation         = "VALIDATION_FAILED"
)

const refreshCookiePath = "/api/auth"

type Option func(*Server)

// WithAccessTTL sets the lifetime of access tokens.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokens.ttl = ttl }
}

// WithSessionTTL sets the sliding session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) { s.sessionTTL = ttl }
}

// WithRememberMeTTL sets the session lifetime for remember-me logins.
func WithRememberMeTTL(ttl time.Duration) Option {
	return func(s *Server) { s.rememberTTL = ttl }
}

// WithSigningSecret sets the HS256 key for access tokens; a random key is used otherwise.
func WithSigningSecret(secret []byte) Option {
	return func(s *Server) { s.tokens.secret = secret }
}

// WithSecureCookies marks cookies Secure, for deployments behind TLS.
func WithSecureCookies(secure bool) Option {
	return func(s *Server) { s.secureCookies = secure }
}

// WithSeed replaces the default users and roles.
func WithSeed(seed *Seed) Option {
	return func(s *Server) { s.seed = seed }
}

// WithBcryptCost lowers the hashing cost, for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server serves the API.
type Server struct {
	sessions store.SessionStore
	accounts store.AccountStore
	roles    store.RoleStore
	tokens   *tokenSigner

	sessionTTL    time.Duration
	rememberTTL   time.Duration
	secureCookies bool
	bcryptCost    int
	seed          *Seed
	logger        zerolog.Logger

	projects projectList

	mu     sync.Mutex
	counts map[string]int
	latest map[string]uuid.UUID // user_id -> most recent session
}

// New creates a seeded server backed by memory stores.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		sessions:    memory.NewSessionStore(),
		accounts:    memory.NewAccountStore(),
		roles:       memory.NewRoleStore(),
		tokens:      &tokenSigner{ttl: 5 * time.Minute},
		sessionTTL:  config.SessionLifetime,
		rememberTTL: 30 * 24 * time.Hour,
		bcryptCost:  bcrypt.DefaultCost,
		seed:        DefaultSeed(),
		logger:      log.Logger,
		counts:      make(map[string]int),
		latest:      make(map[string]uuid.UUID),
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(s.tokens.secret) == 0 {
		s.tokens.secret = []byte(rand.Text() + rand.Text())
	}
	if len(s.tokens.secret) < 32 {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if s.tokens.ttl <= 0 || s.sessionTTL <= 0 || s.rememberTTL <= 0 {
		return nil, errors.New("token and session lifetimes must be greater than 0")
	}

	if err := s.applySeed(context.Background(), s.seed); err != nil {
		return nil, fmt.Errorf("failed to seed mock api: %w", err)
	}

	return s, nil
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST /api/auth/login", s.login)
	s.route(mux, "POST /api/auth/register", s.register)
	s.route(mux, "POST /api/auth/logout", s.logout)
	s.route(mux, "POST /api/auth/logout-all", s.requireSession(s.requireCSRF(s.logoutAll)))
	s.route(mux, "GET /api/auth/me", s.requireSession(s.me))
	s.route(mux, "POST /api/auth/refresh", s.refresh)

	s.route(mux, "GET /api/roles/{id}", s.requireSession(s.getRole))
	s.route(mux, "GET /api/projects", s.requireSession(s.listProjects))
	s.route(mux, "POST /api/projects", s.requireSession(s.requireCSRF(s.createProject)))

	s.route(mux, "GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return clientIP(mux)
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.counts[pattern]++
		s.mu.Unlock()

		h(w, r)
	})
}

// Count returns how often the route pattern was hit, e.g. "POST /api/auth/refresh".
func (s *Server) Count(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[pattern]
}

// Counts returns a copy of all route hit counters.
func (s *Server) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.counts)
}

// RunJanitor deletes expired sessions every interval until ctx is done.
func (s *Server) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.DeleteExpired(ctx)
			if err != nil {
				s.logger.Error().Err(err).Msg("failed to delete expired sessions")
				continue
			}
			if n > 0 {
				s.logger.Info().Int("count", n).Msg("deleted expired sessions")
			}
		}
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
