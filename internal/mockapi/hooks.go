package mockapi

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/store"
)

// ErrNoSession is returned by hooks when the user has no session.
var ErrNoSession = errors.New("user has no session")

// LatestSession returns the id of the most recent session started for userID.
func (s *Server) LatestSession(userID string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.latest[userID]
	if !ok {
		return uuid.Nil, ErrNoSession
	}
	return id, nil
}

// ExpireAccess invalidates every access token issued so far for the session.
// The next request answers AUTH_TOKEN_EXPIRED until the client refreshes.
func (s *Server) ExpireAccess(ctx context.Context, sessionID uuid.UUID) error {
	return s.mutate(ctx, sessionID, func(session *models.Session) { session.AccessGen++ })
}

// Revoke makes every further request on the session answer SESSION_REVOKED.
func (s *Server) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	return s.mutate(ctx, sessionID, func(session *models.Session) { session.Revoked = true })
}

// Hijack makes every further request on the session answer SESSION_HIJACK_DETECTED.
func (s *Server) Hijack(ctx context.Context, sessionID uuid.UUID) error {
	return s.mutate(ctx, sessionID, func(session *models.Session) { session.Hijacked = true })
}

// ExpireSession ends the session's lifetime now.
func (s *Server) ExpireSession(ctx context.Context, sessionID uuid.UUID) error {
	return s.mutate(ctx, sessionID, func(session *models.Session) {
		session.ExpiresAt = time.Now().Add(-time.Second)
	})
}

func (s *Server) mutate(ctx context.Context, sessionID uuid.UUID, fn func(*models.Session)) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return ErrNoSession
		}
		return err
	}

	fn(session)
	return s.sessions.Update(ctx, session)
}
