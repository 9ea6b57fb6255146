package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/checklist-engine/internal/models"
)

// publicURL builds the shareable link for a checklist token
func (s *Server) publicURL(token string) string {
	return s.config.PublicBaseURL + "/c/" + token
}

func (s *Server) handleCreateChecklist(w http.ResponseWriter, r *http.Request) {
	var req models.CreateChecklistRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := s.manager.CreateChecklist(r.Context(), req)
	if err != nil {
		respondManagerError(w, err, "create checklist")
		return
	}

	respondJSON(w, http.StatusCreated, models.ChecklistResponse{
		Checklist: view,
		PublicURL: s.publicURL(view.PublicToken),
	})
}

func (s *Server) handleListChecklists(w http.ResponseWriter, r *http.Request) {
	filters := models.ChecklistFilters{
		Search: r.URL.Query().Get("search"),
		Status: models.ChecklistStatus(r.URL.Query().Get("status")),
		Limit:  50, // default
		Offset: 0,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	list, err := s.manager.ListChecklists(r.Context(), filters)
	if err != nil {
		respondManagerError(w, err, "list checklists")
		return
	}

	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleChecklistStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		respondManagerError(w, err, "count checklists")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetChecklist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := s.manager.GetChecklist(r.Context(), id)
	if err != nil {
		respondManagerError(w, err, "get checklist", "id", id)
		return
	}

	respondJSON(w, http.StatusOK, models.ChecklistResponse{
		Checklist: view,
		PublicURL: s.publicURL(view.PublicToken),
	})
}

func (s *Server) handleDeleteChecklist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.manager.DeleteChecklist(r.Context(), id); err != nil {
		respondManagerError(w, err, "delete checklist", "id", id)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "checklist deleted",
	})
}
