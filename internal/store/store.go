// Package store defines the persistence used by the mock API.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/permission"
)

// Sentinel errors for common error conditions
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrRoleNotFound    = errors.New("role not found")
)

// SessionStore manages server side sessions.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	// Get returns ErrSessionExpired for sessions past their expiry.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error
	Delete(ctx context.Context, sessionID uuid.UUID) error
	// DeleteByUser removes every session of a user (logout everywhere).
	DeleteByUser(ctx context.Context, userID string) (int, error)
	// DeleteExpired removes expired sessions (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)
}

// AccountStore manages user accounts.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	Get(ctx context.Context, userID string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

// RoleStore serves role permission trees.
type RoleStore interface {
	Get(ctx context.Context, roleID string) (*permission.Role, error)
	Put(ctx context.Context, role *permission.Role) error
}
