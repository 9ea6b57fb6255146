package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/terra-clan/checklist-engine/internal/auth"
	"github.com/terra-clan/checklist-engine/internal/models"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "username and password are required")
		return
	}

	admin, err := auth.Authenticate(r.Context(), s.users, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			slog.Warn("failed login attempt", "username", req.Username, "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
			return
		}
		slog.Error("failed to authenticate", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to sign in")
		return
	}

	sessionID, err := s.sessions.Create(r.Context(), admin.ID)
	if err != nil {
		slog.Error("failed to create session", "error", err, "admin", admin.Username)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to sign in")
		return
	}

	s.auth.setSessionCookie(w, sessionID)
	slog.Info("admin signed in", "admin", admin.Username)

	respondJSON(w, http.StatusOK, admin)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		if err := s.sessions.Delete(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to delete session", "error", err)
		}
	}

	s.auth.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "signed out",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, AdminFromContext(r.Context()))
}
