package logger

import (
	"net/http"
	"os"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

var _ http.RoundTripper = (*RequestLogger)(nil)

// RequestLogger logs outbound API calls. Bodies, cookies and headers are never logged.
type RequestLogger struct {
	next   http.RoundTripper
	logger zerolog.Logger
}

func NewRequestLogger(next http.RoundTripper, logger zerolog.Logger) *RequestLogger {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RequestLogger{next: next, logger: logger}
}

func (l *RequestLogger) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()

	resp, err := l.next.RoundTrip(req)
	if err != nil {
		l.logger.Debug().
			Err(err).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("duration", time.Since(started)).
			Msg("api call failed")

		return resp, err
	}

	l.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("api call")

	return resp, nil
}

// HTTPRequests is server middleware logging one line per request and attaching
// the logger to the request context.
func HTTPRequests(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger().WithContext(r.Context())

			m := httpsnoop.CaptureMetrics(next, w, r.WithContext(ctx))

			event := zerolog.Ctx(ctx).Info()
			if m.Code >= http.StatusInternalServerError {
				event = zerolog.Ctx(ctx).Error()
			}
			event.
				Int("status", m.Code).
				Int64("bytes", m.Written).
				Dur("duration", m.Duration).
				Msg("http request")
		})
	}
}
