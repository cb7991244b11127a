package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/fitout/internal/config"
)

func TestCaching_ServesRepeatGetsFromCache(t *testing.T) {
	var hits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/roles/role-user", func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		w.Header().Set("Cache-Control", "private, max-age=60")
		if n == 1 {
			w.Header().Set(HeaderCSRF, "cached-token")
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "role-user"})
	})
	mux.HandleFunc("/api/rotate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderCSRF, "fresh-token")
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.Default()
	cfg.BaseURL = srv.URL

	c, err := New(cfg, nil, WithLogger(zerolog.Nop()), WithCaching())
	require.NoError(t, err)

	ctx := context.Background()

	first, err := Get[map[string]string](ctx, c, "/api/roles/role-user")
	require.NoError(t, err)
	assert.Equal(t, "role-user", first["id"])
	assert.Equal(t, "cached-token", c.CSRFToken())

	require.NoError(t, c.Do(ctx, http.MethodPost, "/api/rotate", nil, nil))
	assert.Equal(t, "fresh-token", c.CSRFToken())

	second, err := Get[map[string]string](ctx, c, "/api/roles/role-user")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "fresh-token", c.CSRFToken(), "cached responses do not roll the token back")
}

func TestTracing_WrapsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.BaseURL = srv.URL

	c, err := New(cfg, nil, WithLogger(zerolog.Nop()), WithTracing())
	require.NoError(t, err)

	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/", nil, nil))
}
