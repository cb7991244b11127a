package mockapi

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey int

const (
	clientIPContextKey contextKey = iota
	authContextKey
)

// extractClientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then
// the connection's remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// clientIP stores the client address in the request context for session auditing.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPContextKey, extractClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
