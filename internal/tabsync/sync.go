package tabsync

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/fitout/internal/events"
	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/telemetry"
)

// MessageType identifies a session change.
type MessageType string

const (
	MessageLogin   MessageType = "login"
	MessageLogout  MessageType = "logout"
	MessageRefresh MessageType = "refresh"
)

// Message is the JSON payload exchanged on a Channel. User is only set for login.
// Session names the server session the sender holds; receivers holding a
// different session ignore the message.
type Message struct {
	Type    MessageType  `json:"type"`
	User    *models.User `json:"user,omitempty"`
	Session string       `json:"session,omitempty"`
	Origin  string       `json:"origin"`
}

type Option func(*Sync)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sync) { s.logger = logger }
}

// Sync publishes and receives session changes over a Channel. Messages it sent
// itself are never delivered back to its subscribers.
type Sync struct {
	ch          Channel
	origin      string
	subscribers *events.Bus[Message]
	unlisten    func()
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
}

// New wraps ch. A nil channel behaves like Noop.
func New(ch Channel, opts ...Option) *Sync {
	if ch == nil {
		ch = Noop{}
	}

	s := &Sync{
		ch:          ch,
		origin:      uuid.NewString(),
		subscribers: events.NewBus[Message](),
		logger:      log.Logger,
		metrics:     telemetry.GetMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.unlisten = ch.Listen(s.receive)

	return s
}

// Origin returns the identifier stamped on outgoing messages.
func (s *Sync) Origin() string {
	return s.origin
}

func (s *Sync) BroadcastLogin(ctx context.Context, session string, user *models.User) {
	s.broadcast(ctx, Message{Type: MessageLogin, User: user.Clone(), Session: session})
}

func (s *Sync) BroadcastLogout(ctx context.Context, session string) {
	s.broadcast(ctx, Message{Type: MessageLogout, Session: session})
}

func (s *Sync) BroadcastRefresh(ctx context.Context, session string) {
	s.broadcast(ctx, Message{Type: MessageRefresh, Session: session})
}

// RefreshNotifier returns a hook that broadcasts a refresh of whatever session
// current reports at call time.
func (s *Sync) RefreshNotifier(current func() string) func(context.Context) {
	return func(ctx context.Context) {
		s.BroadcastRefresh(ctx, current())
	}
}

// Subscribe registers fn for messages from other origins.
func (s *Sync) Subscribe(fn func(Message)) (unsubscribe func()) {
	return s.subscribers.Subscribe(fn)
}

// Close stops listening and closes the channel.
func (s *Sync) Close() error {
	s.unlisten()
	return s.ch.Close()
}

func (s *Sync) broadcast(ctx context.Context, msg Message) {
	msg.Origin = s.origin

	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Debug().Err(err).Str("type", string(msg.Type)).Msg("failed to encode broadcast")
		return
	}

	if err := s.ch.Publish(ctx, data); err != nil {
		s.logger.Debug().Err(err).Str("type", string(msg.Type)).Msg("broadcast failed")
		return
	}

	s.metrics.BroadcastsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(msg.Type))))
}

func (s *Sync) receive(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug().Err(err).Msg("ignoring malformed broadcast")
		return
	}

	if msg.Origin == s.origin {
		return
	}

	switch msg.Type {
	case MessageLogin, MessageLogout, MessageRefresh:
	default:
		s.logger.Debug().Str("type", string(msg.Type)).Msg("ignoring unknown broadcast")
		return
	}

	s.subscribers.Publish(msg)
}
