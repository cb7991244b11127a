// Package auth owns the in-memory authentication state: the current user and
// whether the initial session check is still running. It connects the API
// client, the refresh service and the cross-client broadcast, and publishes
// every state change to its observers. It never navigates; redirects belong
// to the guard that observes it.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/fitout/internal/apierror"
	"github.com/wolfeidau/fitout/internal/client"
	"github.com/wolfeidau/fitout/internal/events"
	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/tabsync"
)

var (
	// ErrNotInitialised is returned by operations that need Init to have completed.
	ErrNotInitialised = errors.New("auth provider not initialised")
	ErrNoUser         = errors.New("session response carried no user")
)

// reasonSessionCheck is logged when a revalidation finds the session gone.
const reasonSessionCheck = "SESSION_CHECK_FAILED"

// API is the part of the HTTP client the provider drives.
type API interface {
	Me(ctx context.Context) (*models.User, error)
	Login(ctx context.Context, req client.LoginRequest) (*models.User, error)
	Register(ctx context.Context, req client.RegisterRequest) (*models.User, error)
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
	// SessionID names the server session behind the last successful
	// login, register or me call.
	SessionID() string
}

// RefreshService is the proactive refresh timer.
type RefreshService interface {
	Start()
	Stop()
	RefreshNow(ctx context.Context)
	Running() bool
}

// State is an immutable snapshot of the provider.
type State struct {
	User    *models.User
	Loading bool
}

func (s State) IsAuthenticated() bool {
	return s.User != nil
}

type Option func(*Provider)

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// Provider is the single owner of the user and loading state.
type Provider struct {
	api     API
	refresh RefreshService
	bcast   *tabsync.Sync
	logger  zerolog.Logger

	mu      sync.RWMutex
	user    *models.User
	loading bool

	initOnce  sync.Once
	closeOnce sync.Once
	observers *events.Bus[State]
	unsubs    []func()
}

// NewProvider creates a provider in the loading state and subscribes it to the
// session expired bus and the broadcast channel. broadcast may be nil.
func NewProvider(api API, refresh RefreshService, broadcast *tabsync.Sync, bus *events.Bus[events.SessionExpired], opts ...Option) *Provider {
	if broadcast == nil {
		broadcast = tabsync.New(nil)
	}

	p := &Provider{
		api:       api,
		refresh:   refresh,
		bcast:     broadcast,
		logger:    log.Logger,
		loading:   true,
		observers: events.NewBus[State](),
	}
	for _, opt := range opts {
		opt(p)
	}

	if bus != nil {
		p.unsubs = append(p.unsubs, bus.Subscribe(p.onSessionExpired))
	}
	p.unsubs = append(p.unsubs, broadcast.Subscribe(p.onBroadcast))

	return p
}

// Init runs the session check. Only the first call does any work; later calls
// return immediately. An anonymous visitor is not an error.
func (p *Provider) Init(ctx context.Context) {
	p.initOnce.Do(func() {
		user, err := p.api.Me(ctx)
		if err != nil || user == nil {
			p.logger.Debug().Err(err).Msg("no active session")
			p.setState(nil, false)
			return
		}

		p.refresh.Start()
		p.setState(user, false)
	})
}

// Login authenticates and adopts the returned user. Errors are returned for the
// caller to present.
func (p *Provider) Login(ctx context.Context, email, password string, rememberMe bool) (*models.User, error) {
	user, err := p.api.Login(ctx, client.LoginRequest{Email: email, Password: password, RememberMe: rememberMe})
	if err != nil {
		return nil, err
	}
	p.adopt(ctx, user)
	return user.Clone(), nil
}

// Register creates an account and adopts it like Login.
func (p *Provider) Register(ctx context.Context, name, email, password, role string) (*models.User, error) {
	user, err := p.api.Register(ctx, client.RegisterRequest{Name: name, Email: email, Password: password, Role: role})
	if err != nil {
		return nil, err
	}
	p.adopt(ctx, user)
	return user.Clone(), nil
}

func (p *Provider) adopt(ctx context.Context, user *models.User) {
	p.setState(user, false)
	p.refresh.Start()
	p.bcast.BroadcastLogin(ctx, p.api.SessionID(), user)
}

// Logout always succeeds locally. The timer is stopped before the server call
// so no refresh can race it.
func (p *Provider) Logout(ctx context.Context) {
	p.refresh.Stop()
	session := p.api.SessionID()

	if err := p.api.Logout(ctx); err != nil {
		p.logger.Debug().Err(err).Msg("server logout failed, clearing local session anyway")
	}

	p.signOut(ctx, session)
}

// LogoutAll ends every session of the user with the same ordering as Logout.
// Local state is cleared even when the server call fails; that error is returned.
func (p *Provider) LogoutAll(ctx context.Context) error {
	p.refresh.Stop()
	session := p.api.SessionID()

	err := p.api.LogoutAll(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("server logout-all failed, clearing local session anyway")
	}

	p.signOut(ctx, session)

	return err
}

// signOut clears the user and tells other clients holding session. When the
// server call already ended the session through the expired bus there is
// nothing left to clear and nothing is sent twice.
func (p *Provider) signOut(ctx context.Context, session string) {
	if !p.clearUser() {
		if p.Loading() {
			p.setState(nil, false)
		}
		return
	}
	p.bcast.BroadcastLogout(ctx, session)
}

// Refresh re-checks the session with the server. A 401 ends the local session.
func (p *Provider) Refresh(ctx context.Context) (*models.User, error) {
	if p.Loading() {
		return nil, ErrNotInitialised
	}

	user, err := p.api.Me(ctx)
	if err != nil {
		if apierror.IsUnauthorized(err) {
			p.endSession(ctx, reasonSessionCheck)
		}
		return nil, err
	}
	if user == nil {
		p.endSession(ctx, reasonSessionCheck)
		return nil, ErrNoUser
	}

	wasAuthenticated := p.IsAuthenticated()
	p.setState(user, false)
	if !wasAuthenticated {
		p.refresh.Start()
	}

	return user.Clone(), nil
}

// VisibilityChanged refreshes opportunistically when the client becomes active again.
func (p *Provider) VisibilityChanged(ctx context.Context, visible bool) {
	if !visible || !p.IsAuthenticated() || !p.refresh.Running() {
		return
	}
	p.refresh.RefreshNow(ctx)
}

// Close detaches the provider from its event sources and stops the refresh timer.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		for _, unsub := range p.unsubs {
			unsub()
		}
		p.refresh.Stop()
	})
	return nil
}

// User returns a copy of the current user, nil when anonymous.
func (p *Provider) User() *models.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user.Clone()
}

func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

func (p *Provider) IsAuthenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user != nil
}

func (p *Provider) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return State{User: p.user.Clone(), Loading: p.loading}
}

// Subscribe registers fn to receive a snapshot after every state change.
func (p *Provider) Subscribe(fn func(State)) (unsubscribe func()) {
	return p.observers.Subscribe(fn)
}

func (p *Provider) onSessionExpired(e events.SessionExpired) {
	p.endSession(context.Background(), e.Reason)
}

// endSession stops the timer, clears the user and tells other clients. It is a
// no-op when no user is set.
func (p *Provider) endSession(ctx context.Context, reason string) {
	if !p.IsAuthenticated() {
		return
	}

	p.refresh.Stop()
	if !p.clearUser() {
		return
	}

	p.logger.Info().Str("reason", reason).Msg("session ended")
	p.bcast.BroadcastLogout(ctx, p.api.SessionID())
}

// onBroadcast applies changes made by clients sharing this session. Messages
// about other sessions are dropped: over Redis every process has its own
// cookies, so a logout elsewhere says nothing about ours.
func (p *Provider) onBroadcast(msg tabsync.Message) {
	switch msg.Type {
	case tabsync.MessageLogout:
		if !p.IsAuthenticated() || msg.Session != p.api.SessionID() {
			return
		}
		p.refresh.Stop()
		p.clearUser()

	case tabsync.MessageLogin:
		if msg.User == nil || p.IsAuthenticated() {
			return
		}
		p.adoptFromBroadcast(msg)

	case tabsync.MessageRefresh:
		if msg.Session != p.api.SessionID() {
			return
		}
		p.logger.Debug().Str("origin", msg.Origin).Msg("session refreshed elsewhere")
	}
}

// adoptFromBroadcast takes over a login made by another client only when our
// own cookies carry that same session.
func (p *Provider) adoptFromBroadcast(msg tabsync.Message) {
	user, err := p.api.Me(context.Background())
	if err != nil || user == nil {
		p.logger.Debug().Err(err).Msg("ignoring login from a client without a shared session")
		return
	}
	if p.api.SessionID() != msg.Session {
		p.logger.Debug().Msg("ignoring login for a different session")
		return
	}
	if p.IsAuthenticated() {
		return
	}

	p.setState(user, false)
	p.refresh.Start()
}

func (p *Provider) setState(user *models.User, loading bool) {
	p.mu.Lock()
	p.user = user.Clone()
	p.loading = loading
	snapshot := State{User: p.user.Clone(), Loading: p.loading}
	p.mu.Unlock()

	p.observers.Publish(snapshot)
}

// clearUser reports whether a user was cleared.
func (p *Provider) clearUser() bool {
	p.mu.Lock()
	if p.user == nil {
		p.mu.Unlock()
		return false
	}
	p.user = nil
	p.loading = false
	snapshot := State{Loading: false}
	p.mu.Unlock()

	p.observers.Publish(snapshot)
	return true
}
