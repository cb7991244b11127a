package client

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/wolfeidau/fitout/internal/apierror"
)

// ErrRefreshInFlight is returned by TryRefresh when another refresh holds the gate.
var ErrRefreshInFlight = errors.New("refresh already in flight")

// reasonRefreshRejected is published when /api/auth/refresh answers 401 without a code.
const reasonRefreshRejected = "REFRESH_TOKEN_INVALID"

type refreshCall struct {
	done chan struct{}
	err  error
}

// refreshGate is the single "refresh in flight" flag shared by the reactive
// 401 path and the refresh service. Checking and setting happen under one lock.
type refreshGate struct {
	mu   sync.Mutex
	call *refreshCall
}

// begin returns the in-flight call and false, or a new call and true when the
// caller now owns the gate.
func (g *refreshGate) begin() (*refreshCall, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.call != nil {
		return g.call, false
	}
	g.call = &refreshCall{done: make(chan struct{})}
	return g.call, true
}

func (g *refreshGate) finish(call *refreshCall, err error) {
	call.err = err

	g.mu.Lock()
	g.call = nil
	g.mu.Unlock()

	close(call.done)
}

func (g *refreshGate) inFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.call != nil
}

// Refreshing reports whether a refresh call is currently in flight.
func (c *Client) Refreshing() bool {
	return c.gate.inFlight()
}

// Refresh renews the session. If a refresh is already in flight it waits for
// that one and returns its result, so only one network call is ever made.
//
// A waiter whose own context is still live does not inherit the owner's
// cancellation: when the owner gave up (for example the timer was stopped)
// the waiter takes the gate once and refreshes itself.
func (c *Client) Refresh(ctx context.Context) error {
	for retried := false; ; retried = true {
		call, owner := c.gate.begin()
		if owner {
			err := c.refresh(ctx)
			c.gate.finish(call, err)
			return err
		}

		select {
		case <-call.done:
			if !retried && ctx.Err() == nil && isContextError(call.err) {
				continue
			}
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryRefresh renews the session unless a refresh is already in flight, in which
// case it returns ErrRefreshInFlight without touching the network.
func (c *Client) TryRefresh(ctx context.Context) error {
	call, owner := c.gate.begin()
	if !owner {
		c.metrics.RefreshSkippedTotal.Add(ctx, 1)
		return ErrRefreshInFlight
	}

	err := c.refresh(ctx)
	c.gate.finish(call, err)
	return err
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) refresh(ctx context.Context) error {
	c.metrics.RefreshTotal.Add(ctx, 1)

	err := c.send(ctx, http.MethodPost, PathRefresh, nil, nil)
	if err == nil {
		c.logger.Debug().Msg("session refreshed")
		return nil
	}

	c.metrics.RefreshErrorsTotal.Add(ctx, 1)

	if apiErr, ok := apierror.As(err); ok && apiErr.StatusCode == http.StatusUnauthorized {
		reason := apiErr.Code
		if reason == "" {
			reason = reasonRefreshRejected
		}
		c.expire(ctx, reason)
	}

	return err
}
