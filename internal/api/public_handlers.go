package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/checklist-engine/internal/models"
)

// --- Public handlers (checklist token = auth) ---

func (s *Server) handleGetPublicChecklist(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	view, err := s.manager.ResolveToken(r.Context(), token)
	if err != nil {
		respondManagerError(w, err, "get checklist")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleSetTaskValue(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	taskID := chi.URLParam(r, "taskID")

	// An absent "value" must not read as null, which clears the answer
	var req struct {
		Value json.RawMessage `json:"value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Value) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_value", `"value" is required; send null to clear the answer`)
		return
	}

	var value models.TaskValue
	if err := json.Unmarshal(req.Value, &value); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_value", err.Error())
		return
	}

	view, err := s.manager.SetTaskValue(r.Context(), token, taskID, value)
	if err != nil {
		respondManagerError(w, err, "save task value", "task_id", taskID)
		return
	}

	respondJSON(w, http.StatusOK, view)
}
