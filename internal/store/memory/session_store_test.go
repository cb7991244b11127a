package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/store"
)

func newSession(t *testing.T, userID, refresh string, ttl time.Duration) *models.Session {
	t.Helper()

	id, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	return &models.Session{
		SessionID:    id,
		UserID:       userID,
		RefreshToken: refresh,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastUsedAt:   now,
	}
}

func TestSessionStore_CreateGet(t *testing.T) {
	t.Run("create and get", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()
		session := newSession(t, "u1", "r1", time.Hour)

		require.NoError(t, st.Create(ctx, session))

		got, err := st.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, "u1", got.UserID)

		got.UserID = "mutated"
		again, err := st.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, "u1", again.UserID)
	})

	t.Run("missing session", func(t *testing.T) {
		st := NewSessionStore()

		_, err := st.Get(context.Background(), uuid.New())
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("expired session", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()
		session := newSession(t, "u1", "r1", -time.Minute)

		require.NoError(t, st.Create(ctx, session))

		_, err := st.Get(ctx, session.SessionID)
		require.ErrorIs(t, err, store.ErrSessionExpired)
	})
}

func TestSessionStore_RefreshTokenRotation(t *testing.T) {
	st := NewSessionStore()
	ctx := context.Background()
	session := newSession(t, "u1", "r1", time.Hour)
	require.NoError(t, st.Create(ctx, session))

	got, err := st.GetByRefreshToken(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, session.SessionID, got.SessionID)

	got.RefreshToken = "r2"
	require.NoError(t, st.Update(ctx, got))

	_, err = st.GetByRefreshToken(ctx, "r1")
	require.ErrorIs(t, err, store.ErrSessionNotFound)

	rotated, err := st.GetByRefreshToken(ctx, "r2")
	require.NoError(t, err)
	require.Equal(t, session.SessionID, rotated.SessionID)
}

func TestSessionStore_Update_Missing(t *testing.T) {
	st := NewSessionStore()

	err := st.Update(context.Background(), newSession(t, "u1", "r1", time.Hour))
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	st := NewSessionStore()
	ctx := context.Background()
	session := newSession(t, "u1", "r1", time.Hour)
	require.NoError(t, st.Create(ctx, session))

	require.NoError(t, st.Delete(ctx, session.SessionID))
	require.ErrorIs(t, st.Delete(ctx, session.SessionID), store.ErrSessionNotFound)

	_, err := st.GetByRefreshToken(ctx, "r1")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionStore_DeleteByUser(t *testing.T) {
	st := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, newSession(t, "u1", "a", time.Hour)))
	require.NoError(t, st.Create(ctx, newSession(t, "u1", "b", time.Hour)))
	other := newSession(t, "u2", "c", time.Hour)
	require.NoError(t, st.Create(ctx, other))

	n, err := st.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 1, st.Len())

	n, err = st.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = st.Get(ctx, other.SessionID)
	require.NoError(t, err)
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	st := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, newSession(t, "u1", "a", -time.Minute)))
	require.NoError(t, st.Create(ctx, newSession(t, "u1", "b", time.Hour)))

	n, err := st.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, st.Len())
}

func TestSessionStore_UpdateLastUsed(t *testing.T) {
	st := NewSessionStore()
	ctx := context.Background()
	session := newSession(t, "u1", "r1", time.Hour)
	session.LastUsedAt = time.Now().Add(-time.Hour)
	require.NoError(t, st.Create(ctx, session))

	require.NoError(t, st.UpdateLastUsed(ctx, session.SessionID))

	got, err := st.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), got.LastUsedAt, time.Second)

	require.ErrorIs(t, st.UpdateLastUsed(ctx, uuid.New()), store.ErrSessionNotFound)
}
