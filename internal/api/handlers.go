package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/checklist-engine/internal/checklist"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeError(w, status, &apiError{Code: code, Message: message})
}

func writeError(w http.ResponseWriter, status int, e *apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error:   e,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondManagerError maps checklist errors to HTTP responses. Anything
// unrecognized is logged and reported as a 500 with a generic message.
func respondManagerError(w http.ResponseWriter, err error, action string, attrs ...any) {
	var verr *checklist.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, &apiError{
			Code:    "validation_error",
			Message: verr.Error(),
			Fields:  verr.Fields,
		})
	case errors.Is(err, checklist.ErrTemplateNotFound):
		respondError(w, http.StatusNotFound, "template_not_found", "template not found")
	case errors.Is(err, checklist.ErrChecklistNotFound):
		respondError(w, http.StatusNotFound, "not_found", "checklist not found")
	case errors.Is(err, checklist.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, "task_not_found", "task not found in checklist")
	case errors.Is(err, checklist.ErrInvalidTaskValue):
		respondError(w, http.StatusBadRequest, "invalid_value", err.Error())
	case errors.Is(err, checklist.ErrChecklistLocked):
		respondError(w, http.StatusLocked, "checklist_locked", "checklist is overdue and can no longer be edited")
	case errors.Is(err, checklist.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", "conflicts with an existing record")
	default:
		slog.Error("failed to "+action, append([]any{"error", err}, attrs...)...)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// decodeJSON reads a JSON request body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	var err error
	if s.registry != nil {
		err = s.registry.Ready(r.Context())
	} else {
		err = s.manager.Ping(r.Context())
	}
	if err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
