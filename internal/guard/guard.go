// Package guard is the only place that turns authentication state into
// navigation. Everything else signals; the guard redirects.
package guard

import (
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/fitout/internal/auth"
)

// Default routes.
const (
	DefaultLoginPath      = "/"
	DefaultAdminDashboard = "/admin/dashboard"
	DefaultUserDashboard  = "/user/dashboard"
)

// DefaultPublicPaths are reachable without a session.
var DefaultPublicPaths = []string{"/", "/login", "/register", "/forgot-password"}

// Navigator performs a redirect.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

func (f NavigatorFunc) Navigate(target string) { f(target) }

// StateSource is what the guard observes, normally an *auth.Provider.
type StateSource interface {
	Snapshot() auth.State
	Subscribe(fn func(auth.State)) (unsubscribe func())
}

type Action int

const (
	ActionWait Action = iota
	ActionRender
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionWait:
		return "wait"
	case ActionRender:
		return "render"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one evaluation. Target is only set for redirects.
type Decision struct {
	Action Action
	Target string
}

type Option func(*Guard)

// WithPublicPaths replaces the paths reachable without a session.
func WithPublicPaths(paths ...string) Option {
	return func(g *Guard) {
		g.public = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			g.public[normalise(p)] = struct{}{}
		}
	}
}

func WithDashboards(admin, user string) Option {
	return func(g *Guard) {
		g.adminDashboard = admin
		g.userDashboard = user
	}
}

func WithLoginPath(p string) Option {
	return func(g *Guard) { g.loginPath = p }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// Guard decides between waiting, rendering and redirecting.
type Guard struct {
	nav            Navigator
	public         map[string]struct{}
	loginPath      string
	adminDashboard string
	userDashboard  string
	logger         zerolog.Logger

	mu          sync.Mutex
	redirecting string
}

func New(nav Navigator, opts ...Option) *Guard {
	g := &Guard{
		nav:            nav,
		loginPath:      DefaultLoginPath,
		adminDashboard: DefaultAdminDashboard,
		userDashboard:  DefaultUserDashboard,
		logger:         log.Logger,
	}
	WithPublicPaths(DefaultPublicPaths...)(g)

	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide applies the decision procedure without side effects.
func (g *Guard) Decide(state auth.State, current string) Decision {
	current = normalise(current)

	if state.Loading {
		return Decision{Action: ActionWait}
	}

	_, public := g.public[current]

	if state.User == nil {
		if !public {
			return Decision{Action: ActionRedirect, Target: g.loginPath}
		}
		return Decision{Action: ActionRender}
	}

	if public && current != "/" {
		return Decision{Action: ActionRedirect, Target: g.dashboardFor(state)}
	}

	return Decision{Action: ActionRender}
}

// Evaluate decides and acts. A redirect to the target already being navigated
// to is not issued again; rendering clears that memory.
func (g *Guard) Evaluate(state auth.State, current string) Decision {
	d := g.Decide(state, current)

	switch d.Action {
	case ActionRedirect:
		g.mu.Lock()
		duplicate := g.redirecting == d.Target
		g.redirecting = d.Target
		g.mu.Unlock()

		if duplicate {
			return d
		}

		g.logger.Debug().Str("from", current).Str("to", d.Target).Msg("redirecting")
		g.nav.Navigate(d.Target)

	case ActionRender:
		g.mu.Lock()
		g.redirecting = ""
		g.mu.Unlock()
	}

	return d
}

// Watch evaluates now and after every state change of src. route returns the
// current path at evaluation time.
func (g *Guard) Watch(src StateSource, route func() string) (stop func()) {
	unsubscribe := src.Subscribe(func(state auth.State) {
		g.Evaluate(state, route())
	})
	g.Evaluate(src.Snapshot(), route())
	return unsubscribe
}

// Middleware applies the decision procedure to HTTP requests: redirects become
// 303 responses and waiting becomes a 503 with Retry-After.
func (g *Guard) Middleware(src StateSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Decide(src.Snapshot(), r.URL.Path)

			switch d.Action {
			case ActionWait:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "session check in progress", http.StatusServiceUnavailable)
			case ActionRedirect:
				http.Redirect(w, r, d.Target, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (g *Guard) dashboardFor(state auth.State) string {
	if state.User.IsAdmin() {
		return g.adminDashboard
	}
	return g.userDashboard
}

func normalise(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
