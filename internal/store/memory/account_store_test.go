package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/permission"
	"github.com/wolfeidau/fitout/internal/store"
)

func TestAccountStore(t *testing.T) {
	t.Run("create and lookup", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		account := &models.Account{User: models.User{ID: "u1", Email: "Ada@Example.com"}}
		require.NoError(t, st.Create(ctx, account))

		got, err := st.Get(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "Ada@Example.com", got.User.Email)

		got, err = st.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		require.Equal(t, "u1", got.User.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, &models.Account{User: models.User{ID: "u1", Email: "a@example.com"}}))
		err := st.Create(ctx, &models.Account{User: models.User{ID: "u2", Email: "A@example.com"}})
		require.ErrorIs(t, err, store.ErrAccountExists)
	})

	t.Run("missing", func(t *testing.T) {
		st := NewAccountStore()

		_, err := st.GetByEmail(context.Background(), "nobody@example.com")
		require.ErrorIs(t, err, store.ErrAccountNotFound)
	})
}

func TestRoleStore(t *testing.T) {
	st := NewRoleStore()
	ctx := context.Background()

	_, err := st.Get(ctx, "role-user")
	require.ErrorIs(t, err, store.ErrRoleNotFound)

	role := &permission.Role{ID: "role-user", Name: "User", Permissions: []permission.Node{{ID: "projects.view", Checked: true}}}
	require.NoError(t, st.Put(ctx, role))

	got, err := st.Get(ctx, "role-user")
	require.NoError(t, err)
	require.True(t, got.Can("projects.view"))
}
