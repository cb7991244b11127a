package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/store"
)

var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore implements store.SessionStore using in-memory storage.
// Data is lost on restart.
type SessionStore struct {
	mu sync.RWMutex

	sessions       map[uuid.UUID]*models.Session // session_id -> Session
	sessionsByUser map[string][]uuid.UUID         // user_id -> []session_id
	byRefreshToken map[string]uuid.UUID           // refresh_token -> session_id
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:       make(map[uuid.UUID]*models.Session),
		sessionsByUser: make(map[string][]uuid.UUID),
		byRefreshToken: make(map[string]uuid.UUID),
	}
}

// Create creates a new session in memory.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *session
	s.sessions[session.SessionID] = &clone
	s.sessionsByUser[session.UserID] = append(s.sessionsByUser[session.UserID], session.SessionID)
	if session.RefreshToken != "" {
		s.byRefreshToken[session.RefreshToken] = session.SessionID
	}

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	if session.IsExpired() {
		return nil, store.ErrSessionExpired
	}

	clone := *session
	return &clone, nil
}

// GetByRefreshToken finds the session currently holding token. Rotated tokens no
// longer resolve.
func (s *SessionStore) GetByRefreshToken(ctx context.Context, token string) (*models.Session, error) {
	s.mu.RLock()
	sessionID, exists := s.byRefreshToken[token]
	s.mu.RUnlock()

	if !exists {
		return nil, store.ErrSessionNotFound
	}

	return s.Get(ctx, sessionID)
}

// Update replaces a session, re-indexing its refresh token.
func (s *SessionStore) Update(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.sessions[session.SessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	if existing.RefreshToken != session.RefreshToken {
		delete(s.byRefreshToken, existing.RefreshToken)
		if session.RefreshToken != "" {
			s.byRefreshToken[session.RefreshToken] = session.SessionID
		}
	}

	clone := *session
	clone.LastUsedAt = time.Now()
	s.sessions[session.SessionID] = &clone

	return nil
}

// UpdateLastUsed updates the last_used_at timestamp for a session.
func (s *SessionStore) UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	session.LastUsedAt = time.Now()
	return nil
}

// Delete deletes a session by ID (logout).
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return store.ErrSessionNotFound
	}

	s.deleteLocked(sessionID)
	return nil
}

// DeleteByUser deletes all sessions for a user (logout everywhere).
func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionIDs := append([]uuid.UUID(nil), s.sessionsByUser[userID]...)
	for _, sessionID := range sessionIDs {
		s.deleteLocked(sessionID)
	}

	return len(sessionIDs), nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toDelete []uuid.UUID
	now := time.Now()

	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			toDelete = append(toDelete, id)
		}
	}

	for _, sessionID := range toDelete {
		s.deleteLocked(sessionID)
	}

	return len(toDelete), nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) deleteLocked(sessionID uuid.UUID) {
	session, exists := s.sessions[sessionID]
	if !exists {
		return
	}

	delete(s.byRefreshToken, session.RefreshToken)
	delete(s.sessions, sessionID)

	ids := s.sessionsByUser[session.UserID]
	for i, id := range ids {
		if id == sessionID {
			s.sessionsByUser[session.UserID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.sessionsByUser[session.UserID]) == 0 {
		delete(s.sessionsByUser, session.UserID)
	}
}
