package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/checklist-engine/internal/auth"
	"github.com/terra-clan/checklist-engine/internal/storage"
)

// SessionMiddleware resolves the admin session cookie
type SessionMiddleware struct {
	sessions     auth.SessionStore
	users        auth.UserStore
	ttl          time.Duration
	secureCookie bool
}

// NewSessionMiddleware creates new session middleware
func NewSessionMiddleware(sessions auth.SessionStore, users auth.UserStore, ttl time.Duration, secureCookie bool) *SessionMiddleware {
	if ttl <= 0 {
		ttl = auth.SessionTTL
	}
	return &SessionMiddleware{
		sessions:     sessions,
		users:        users,
		ttl:          ttl,
		secureCookie: secureCookie,
	}
}

// Authenticate requires a valid admin_session cookie and puts the admin
// into the request context
func (m *SessionMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.CookieName)
		if err != nil || cookie.Value == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}

		userID, err := m.sessions.Lookup(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) {
				respondError(w, http.StatusUnauthorized, "unauthorized", "session expired")
				return
			}
			slog.Error("failed to look up session", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "authentication error")
			return
		}

		admin, err := m.users.GetAdminUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				slog.Warn("session for unknown admin", "remote_addr", r.RemoteAddr)
				respondError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
				return
			}
			slog.Error("failed to load admin user", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "authentication error")
			return
		}

		slog.Debug("authenticated request", "admin", admin.Username)

		ctx := ContextWithAdmin(r.Context(), admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// setSessionCookie starts a browser session
func (m *SessionMiddleware) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie
func (m *SessionMiddleware) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
