package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfeidau/fitout/internal/apierror"
	"github.com/wolfeidau/fitout/internal/models"
)

// Auth endpoint paths.
const (
	PathLogin     = "/api/auth/login"
	PathRegister  = "/api/auth/register"
	PathLogout    = "/api/auth/logout"
	PathLogoutAll = "/api/auth/logout-all"
	PathMe        = "/api/auth/me"
	PathRefresh   = "/api/auth/refresh"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// AuthResponse is returned by login, register and me. SessionID names the
// server session the cookies belong to.
type AuthResponse struct {
	User      *models.User `json:"user"`
	SessionID string       `json:"sessionId,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// Login establishes a session and returns the authenticated user.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*models.User, error) {
	return c.authenticate(ctx, http.MethodPost, PathLogin, req)
}

// Register creates an account and its first session.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	return c.authenticate(ctx, http.MethodPost, PathRegister, req)
}

// Logout destroys the current session and drops the held CSRF token.
func (c *Client) Logout(ctx context.Context) error {
	defer c.forget()
	return c.Do(ctx, http.MethodPost, PathLogout, nil, nil)
}

// LogoutAll destroys every session of the current user.
func (c *Client) LogoutAll(ctx context.Context) error {
	defer c.forget()
	return c.Do(ctx, http.MethodPost, PathLogoutAll, nil, nil)
}

// Me returns the user owning the current session.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	return c.authenticate(ctx, http.MethodGet, PathMe, nil)
}

func (c *Client) authenticate(ctx context.Context, method, path string, body any) (*models.User, error) {
	var resp AuthResponse
	if err := c.Do(ctx, method, path, body, &resp); err != nil {
		if apierror.IsUnauthorized(err) {
			c.session.Clear()
		}
		return nil, err
	}
	c.session.Set(resp.SessionID)
	return resp.User, nil
}

func (c *Client) forget() {
	c.ClearCSRF()
	c.session.Clear()
}

// retryable reports whether a token expired response on path may be refreshed and retried.
// The auth endpoints themselves never are.
func retryable(path string) bool {
	path, _, _ = strings.Cut(path, "?")
	switch path {
	case PathLogin, PathRegister, PathRefresh, PathLogout, PathLogoutAll:
		return false
	default:
		return true
	}
}
