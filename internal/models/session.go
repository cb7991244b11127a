package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a server-side session record held by the mock API.
// Clients only ever see it indirectly through cookies and API call outcomes.
type Session struct {
	SessionID uuid.UUID // UUIDv7, carried in the access token "sid" claim
	UserID    string

	// RefreshToken is opaque and rotates on every refresh.
	RefreshToken string
	// CSRFToken is echoed in the X-CSRF-Token response header and required on state-changing calls.
	CSRFToken string
	// AccessGen invalidates outstanding access tokens when bumped.
	AccessGen int

	RememberMe bool
	Revoked    bool
	Hijacked   bool

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
