package mockapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/fitout/internal/apierror"
	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/store"
)

// authed is attached to the request context by requireSession.
type authed struct {
	session *models.Session
	account *models.Account
}

func authFromContext(ctx context.Context) *authed {
	a, _ := ctx.Value(authContextKey).(*authed)
	return a
}

// failure is an error response.
type failure struct {
	status  int
	code    string
	message string
}

func (f *failure) write(w http.ResponseWriter) {
	writeError(w, f.status, f.code, f.message)
}

func unauthorized(code, message string) *failure {
	return &failure{status: http.StatusUnauthorized, code: code, message: message}
}

// requireSession authenticates the access cookie, mapping every failure onto
// the 401 codes the client understands. Authenticated responses carry the
// session's CSRF token.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, fail := s.authenticate(r)
		if fail != nil {
			s.logger.Debug().Str("path", r.URL.Path).Str("code", fail.code).Msg("authentication failed")
			fail.write(w)
			return
		}

		w.Header().Set(HeaderCSRF, a.session.CSRFToken)

		ctx := context.WithValue(r.Context(), authContextKey, a)
		next(w, r.WithContext(ctx))
	}
}

// requireCSRF must run inside requireSession.
func (s *Server) requireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a := authFromContext(r.Context())

		got := r.Header.Get(HeaderCSRF)
		if a == nil || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.session.CSRFToken)) != 1 {
			writeError(w, http.StatusForbidden, CodeCSRFInvalid, "Invalid CSRF token")
			return
		}

		next(w, r)
	}
}

func (s *Server) authenticate(r *http.Request) (*authed, *failure) {
	ctx := r.Context()

	cookie, err := r.Cookie(CookieAccess)
	if err != nil || cookie.Value == "" {
		return nil, unauthorized("", "Not authenticated")
	}

	claims, err := s.tokens.parse(cookie.Value)
	if errors.Is(err, errTokenInvalid) {
		return nil, unauthorized("", "Invalid access token")
	}
	expired := errors.Is(err, errTokenExpired)

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, unauthorized("", "Invalid access token")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrSessionExpired):
		return nil, unauthorized(apierror.CodeSessionExpired, "Session expired")
	case errors.Is(err, store.ErrSessionNotFound):
		return nil, unauthorized(apierror.CodeSessionRevoked, "Session no longer exists")
	case err != nil:
		return nil, &failure{status: http.StatusInternalServerError, message: "failed to load session"}
	}

	if session.Revoked {
		return nil, unauthorized(apierror.CodeSessionRevoked, "Session revoked")
	}

	if session.Hijacked || (session.UserAgent != "" && r.UserAgent() != session.UserAgent) {
		if !session.Hijacked {
			session.Hijacked = true
			_ = s.sessions.Update(ctx, session)
		}
		return nil, unauthorized(apierror.CodeHijackDetected, "Session hijack detected")
	}

	if expired || claims.Gen != session.AccessGen {
		return nil, unauthorized(apierror.CodeTokenExpired, "Access token expired")
	}

	account, err := s.accounts.Get(ctx, session.UserID)
	if err != nil {
		return nil, unauthorized(apierror.CodeSessionRevoked, "Account no longer exists")
	}

	if err := s.sessions.UpdateLastUsed(ctx, session.SessionID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to touch session")
	}

	return &authed{session: session, account: account}, nil
}

// startSession creates a session for account and writes its cookies.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, account *models.Account, rememberMe bool) (*models.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	ttl := s.sessionTTL
	if rememberMe {
		ttl = s.rememberTTL
	}

	now := time.Now()
	session := &models.Session{
		SessionID:    id,
		UserID:       account.User.ID,
		RefreshToken: rand.Text(),
		CSRFToken:    rand.Text(),
		RememberMe:   rememberMe,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastUsedAt:   now,
		UserAgent:    r.UserAgent(),
		IPAddress:    clientIPFromContext(r.Context()),
	}

	if err := s.sessions.Create(r.Context(), session); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.latest[account.User.ID] = session.SessionID
	s.mu.Unlock()

	return session, s.writeSessionCookies(w, session)
}

// writeSessionCookies issues a fresh access token and exposes the CSRF token.
func (s *Server) writeSessionCookies(w http.ResponseWriter, session *models.Session) error {
	access, err := s.tokens.issue(session)
	if err != nil {
		return err
	}

	// the access cookie outlives the token so an expired token still reaches the server
	http.SetCookie(w, &http.Cookie{
		Name:     CookieAccess,
		Value:    access,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CookieRefresh,
		Value:    session.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	w.Header().Set(HeaderCSRF, session.CSRFToken)

	return nil
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{CookieAccess, "/"},
		{CookieRefresh, refreshCookiePath},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.secureCookies,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body := map[string]string{"message": message}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}
