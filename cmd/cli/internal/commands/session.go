package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/fitout/internal/auth"
	"github.com/wolfeidau/fitout/internal/guard"
)

var errSessionEnded = errors.New("session ended")

// SessionCmd holds a session open: the refresher keeps it alive, a guard
// watches the route and the session is revalidated periodically.
type SessionCmd struct {
	SessionFlags `embed:""`

	Route      string `help:"route the guard watches" default:"/login"`
	RememberMe bool   `help:"request a long lived session" name:"remember-me"`
}

func (c *SessionCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log, flush := c.setup(ctx, globals)
	defer flush()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGCONT)
	defer signal.Stop(sigChan)

	s, err := openSession(ctx, &c.SessionFlags, log)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	resumed := make(chan struct{}, 1)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGCONT {
				select {
				case resumed <- struct{}{}:
				default:
				}
				continue
			}
			log.Info().Str("signal", sig.String()).Msg("Received interrupt signal, shutting down...")
			cancel()
			return
		}
	}()

	if _, err := s.signIn(ctx, c.Email, c.Password, c.RememberMe); err != nil {
		return err
	}

	return c.hold(ctx, s, resumed, globals.out(), log)
}

// hold runs until ctx is cancelled or the session ends. A value on resumed is
// treated like a client becoming visible again.
func (c *SessionCmd) hold(ctx context.Context, s *session, resumed <-chan struct{}, out io.Writer, log zerolog.Logger) error {
	var mu sync.Mutex
	route := c.Route

	current := func() string {
		mu.Lock()
		defer mu.Unlock()
		return route
	}

	nav := guard.NavigatorFunc(func(target string) {
		mu.Lock()
		route = target
		mu.Unlock()
		fmt.Fprintf(out, "redirect %s\n", target)
	})

	ended := make(chan struct{})
	var endOnce sync.Once

	unsubscribe := s.provider.Subscribe(func(state auth.State) {
		if state.IsAuthenticated() {
			log.Info().Str("user_id", state.User.ID).Msg("session active")
			return
		}
		log.Info().Msg("session ended")
		endOnce.Do(func() { close(ended) })
	})
	defer unsubscribe()

	state := s.provider.Snapshot()
	if !state.IsAuthenticated() {
		return errSessionEnded
	}
	fmt.Fprintf(out, "signed in as %s, watching %s\n", state.User.Email, current())

	g := guard.New(nav, guard.WithLogger(log))
	stop := g.Watch(s.provider, current)
	defer stop()

	ticker := time.NewTicker(c.SessionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			return errSessionEnded
		case <-resumed:
			s.provider.VisibilityChanged(ctx, true)
		case <-ticker.C:
			if _, err := s.provider.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warn().Err(err).Msg("session check failed")
			}
		}
	}
}
