// Package client is the single chokepoint for API communication. It carries the
// session cookie jar and the CSRF token, decodes failures into apierror values,
// and turns auth failures into a refresh-and-retry or a session expired signal.
// It never decides where the user goes next.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/net/publicsuffix"

	"github.com/wolfeidau/fitout/internal/apierror"
	"github.com/wolfeidau/fitout/internal/config"
	"github.com/wolfeidau/fitout/internal/events"
	"github.com/wolfeidau/fitout/internal/telemetry"
)

// HeaderCSRF carries the anti-forgery token in requests and rotated tokens in responses.
const HeaderCSRF = "X-CSRF-Token"

type retriedKey struct{}

// Client talks to the fitout REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	expired    *events.Bus[events.SessionExpired]
	csrf       tokenHolder
	session    tokenHolder
	gate       refreshGate
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
}

type options struct {
	transport http.RoundTripper
	jar       http.CookieJar
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	caching   bool
	tracing   bool
}

// Option configures a Client.
type Option func(*options)

// WithTransport sets the base transport, http.DefaultTransport otherwise.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithCookieJar replaces the default in-memory cookie jar.
func WithCookieJar(jar http.CookieJar) Option {
	return func(o *options) { o.jar = jar }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCaching caches cacheable GET responses in memory.
func WithCaching() Option {
	return func(o *options) { o.caching = true }
}

// WithTracing wraps the transport with OpenTelemetry HTTP instrumentation.
func WithTracing() Option {
	return func(o *options) { o.tracing = true }
}

// WithMetrics replaces the process wide instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates a Client. expired receives a SessionExpired event whenever the API
// reports a dead session; a private bus is created when nil.
func New(cfg config.Config, expired *events.Bus[events.SessionExpired], opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse api url: %w", err)
	}

	o := options{
		logger:  log.Logger,
		caching: cfg.CacheResponses,
		metrics: telemetry.GetMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.jar == nil {
		o.jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
	}

	if expired == nil {
		expired = events.NewBus[events.SessionExpired]()
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: newTransport(o),
			Jar:       o.jar,
			Timeout:   cfg.Timeout,
		},
		expired: expired,
		metrics: o.metrics,
		logger:  o.logger,
	}, nil
}

// SessionExpired returns the bus the client publishes session expired events on.
func (c *Client) SessionExpired() *events.Bus[events.SessionExpired] {
	return c.expired
}

// CSRFToken returns the token currently held, empty if none.
func (c *Client) CSRFToken() string {
	return c.csrf.Get()
}

// ClearCSRF drops the held token so it is not replayed for the next identity.
func (c *Client) ClearCSRF() {
	c.csrf.Clear()
}

// SessionID returns the server session last reported by login, register or me.
// Empty when anonymous or when the server does not report one.
func (c *Client) SessionID() string {
	return c.session.Get()
}

// Do sends a JSON request and decodes a JSON response into out (which may be nil).
//
// A 401 carrying AUTH_TOKEN_EXPIRED triggers one shared refresh and one retry. A 401
// reporting a dead session publishes SessionExpired without refreshing. Every other
// failure is returned unchanged.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	err := c.send(ctx, method, path, body, out)

	apiErr, ok := apierror.As(err)
	if !ok || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	switch {
	case apiErr.Kind == apierror.KindTokenExpired:
		if isRetry(ctx) || !retryable(path) {
			return err
		}
		return c.refreshAndRetry(ctx, method, path, body, out)

	case apiErr.Kind.EndsSession():
		c.expire(ctx, apiErr.Code)
		return err

	default:
		return err
	}
}

func (c *Client) refreshAndRetry(ctx context.Context, method, path string, body, out any) error {
	if err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("%s %s: refresh after token expiry: %w", method, path, err)
	}

	err := c.send(context.WithValue(ctx, retriedKey{}, true), method, path, body, out)
	if apiErr, ok := apierror.As(err); ok && apiErr.StatusCode == http.StatusUnauthorized {
		reason := apiErr.Code
		if reason == "" {
			reason = apierror.CodeTokenExpired
		}
		c.expire(ctx, reason)
	}

	return err
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	target, err := c.resolve(path)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if isMutating(method) {
		if token := c.csrf.Get(); token != "" {
			req.Header.Set(HeaderCSRF, token)
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RequestDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(attribute.String("method", method)))
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	// cached responses carry whatever token was current when they were stored
	if resp.Header.Get(httpcache.XFromCache) == "" {
		c.csrf.Rotate(resp.Header.Get(HeaderCSRF))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %w", method, path, apierror.Decode(resp))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	// drain so the cache transport sees EOF and the connection is reused
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	u := c.baseURL.JoinPath(ref.Path)
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

// expire publishes the session expired signal. It never navigates.
func (c *Client) expire(ctx context.Context, reason string) {
	c.metrics.SessionExpiredTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	c.logger.Warn().Str("reason", reason).Msg("session expired")
	c.expired.Publish(events.SessionExpired{Reason: reason})
}

func isRetry(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
