package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/checklist-engine/internal/models"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.manager.ListTemplates(r.Context())
	if err != nil {
		respondManagerError(w, err, "list templates")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"total":     len(templates),
	})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req models.TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tmpl, err := s.manager.CreateTemplate(r.Context(), req)
	if err != nil {
		respondManagerError(w, err, "create template")
		return
	}

	respondJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tmpl, err := s.manager.GetTemplate(r.Context(), id)
	if err != nil {
		respondManagerError(w, err, "get template", "id", id)
		return
	}

	respondJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tmpl, err := s.manager.UpdateTemplate(r.Context(), id, req)
	if err != nil {
		respondManagerError(w, err, "update template", "id", id)
		return
	}

	respondJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.manager.DeleteTemplate(r.Context(), id); err != nil {
		respondManagerError(w, err, "delete template", "id", id)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "template deleted",
	})
}
