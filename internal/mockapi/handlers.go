package mockapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfeidau/fitout/internal/apierror"
	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/store"
)

const maxRequestBytes = 64 * 1024

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type userResponse struct {
	User      models.User `json:"user"`
	SessionID string      `json:"sessionId"`
	Message   string      `json:"message,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	account, err := s.accounts.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrAccountNotFound) {
			s.logger.Error().Err(err).Msg("failed to load account")
		}
		writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials")
		return
	}

	session, err := s.startSession(w, r, account, req.RememberMe)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to start session")
		writeError(w, http.StatusInternalServerError, "", "Failed to start session")
		return
	}

	s.logger.Info().Str("user_id", account.User.ID).Bool("remember_me", req.RememberMe).Msg("user logged in")
	writeJSON(w, http.StatusOK, userResponse{User: account.User, SessionID: session.SessionID.String(), Message: "Login successful"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Role == "" {
		req.Role = models.RoleUser
	}

	switch {
	case req.Name == "":
		writeError(w, http.StatusBadRequest, CodeValidation, "Name is required")
		return
	case !validEmail(req.Email):
		writeError(w, http.StatusBadRequest, CodeValidation, "A valid email is required")
		return
	case len(req.Password) < 8:
		writeError(w, http.StatusBadRequest, CodeValidation, "Password must be at least 8 characters")
		return
	case req.Role != models.RoleUser && req.Role != models.RoleAdmin:
		writeError(w, http.StatusBadRequest, CodeValidation, "Unknown role")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Password cannot be used")
		return
	}

	roleID := RoleIDUser
	if req.Role == models.RoleAdmin {
		roleID = RoleIDAdmin
	}

	account := &models.Account{
		User: models.User{
			ID:     newID(),
			Email:  req.Email,
			Name:   req.Name,
			Role:   req.Role,
			RoleID: roleID,
		},
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := s.accounts.Create(r.Context(), account); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			writeError(w, http.StatusConflict, CodeEmailTaken, "Email already registered")
			return
		}
		s.logger.Error().Err(err).Msg("failed to create account")
		writeError(w, http.StatusInternalServerError, "", "Failed to create account")
		return
	}

	session, err := s.startSession(w, r, account, false)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to start session")
		writeError(w, http.StatusInternalServerError, "", "Failed to start session")
		return
	}

	s.logger.Info().Str("user_id", account.User.ID).Msg("user registered")
	writeJSON(w, http.StatusCreated, userResponse{User: account.User, SessionID: session.SessionID.String(), Message: "Registration successful"})
}

// logout always succeeds and clears cookies; any session the access cookie
// names is destroyed, even if its token has expired.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CookieAccess); err == nil {
		if claims, err := s.tokens.parse(cookie.Value); !errors.Is(err, errTokenInvalid) {
			if id, err := uuid.Parse(claims.SessionID); err == nil {
				_ = s.sessions.Delete(r.Context(), id)
			}
		}
	}

	s.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	a := authFromContext(r.Context())

	n, err := s.sessions.DeleteByUser(r.Context(), a.session.UserID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to delete sessions")
		writeError(w, http.StatusInternalServerError, "", "Failed to log out")
		return
	}

	s.logger.Info().Str("user_id", a.session.UserID).Int("sessions", n).Msg("user logged out everywhere")

	s.clearSessionCookies(w)
	w.Header().Del(HeaderCSRF)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out of all sessions", "sessions": n})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	a := authFromContext(r.Context())

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, userResponse{User: a.account.User, SessionID: a.session.SessionID.String()})
}

// refresh rotates the refresh token and CSRF token and slides the session expiry.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(CookieRefresh)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, CodeRefreshInvalid, "Refresh token missing")
		return
	}

	session, err := s.sessions.GetByRefreshToken(ctx, cookie.Value)
	switch {
	case errors.Is(err, store.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, apierror.CodeSessionExpired, "Session expired")
		return
	case err != nil:
		writeError(w, http.StatusUnauthorized, CodeRefreshInvalid, "Refresh token invalid")
		return
	case session.Revoked:
		writeError(w, http.StatusUnauthorized, apierror.CodeSessionRevoked, "Session revoked")
		return
	case session.Hijacked:
		writeError(w, http.StatusUnauthorized, apierror.CodeHijackDetected, "Session hijack detected")
		return
	}

	ttl := s.sessionTTL
	if session.RememberMe {
		ttl = s.rememberTTL
	}

	session.RefreshToken = rand.Text()
	session.CSRFToken = rand.Text()
	session.ExpiresAt = time.Now().Add(ttl)

	if err := s.sessions.Update(ctx, session); err != nil {
		s.logger.Error().Err(err).Msg("failed to rotate session")
		writeError(w, http.StatusInternalServerError, "", "Failed to refresh session")
		return
	}

	if err := s.writeSessionCookies(w, session); err != nil {
		s.logger.Error().Err(err).Msg("failed to issue access token")
		writeError(w, http.StatusInternalServerError, "", "Failed to refresh session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Token refreshed"})
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
