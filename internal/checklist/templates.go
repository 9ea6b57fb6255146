package checklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/terra-clan/checklist-engine/internal/models"
	"github.com/terra-clan/checklist-engine/internal/storage"
)

// normalizeTemplate validates a template request and returns the cleaned
// name, description, duration and category tree. Blank categories and
// untitled tasks are dropped; missing ids are assigned.
func normalizeTemplate(req models.TemplateRequest) (models.TemplateRequest, error) {
	v := &ValidationError{}
	out := models.TemplateRequest{
		Name:          strings.TrimSpace(req.Name),
		Description:   strings.TrimSpace(req.Description),
		EstimatedDays: req.EstimatedDays,
	}

	if out.Name == "" {
		v.add("name", "is required")
	}
	if out.EstimatedDays < 1 {
		out.EstimatedDays = models.DefaultEstimatedDays
	}

	seenTasks := make(map[string]bool)
	seenCategories := make(map[string]bool)

	for i, cat := range req.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			continue
		}

		tasks := make([]models.Task, 0, len(cat.Tasks))
		for j, task := range cat.Tasks {
			title := strings.TrimSpace(task.Title)
			if title == "" {
				continue
			}

			typ := task.Type
			if typ == "" {
				typ = models.TaskCheckbox
			}
			if !typ.Valid() {
				v.add(fmt.Sprintf("categories[%d].tasks[%d].type", i, j), fmt.Sprintf("unknown task type %q", task.Type))
				continue
			}

			id := strings.TrimSpace(task.ID)
			if id == "" {
				id = uuid.New().String()
			}
			if seenTasks[id] {
				v.add(fmt.Sprintf("categories[%d].tasks[%d].id", i, j), fmt.Sprintf("duplicate task id %q", id))
				continue
			}
			seenTasks[id] = true

			tasks = append(tasks, models.Task{
				ID:          id,
				Title:       title,
				Description: strings.TrimSpace(task.Description),
				Type:        typ,
				Required:    task.Required,
			})
		}

		if len(tasks) == 0 {
			continue
		}

		id := strings.TrimSpace(cat.ID)
		if id == "" || seenCategories[id] {
			id = uuid.New().String()
		}
		seenCategories[id] = true

		out.Categories = append(out.Categories, models.Category{ID: id, Name: name, Tasks: tasks})
	}

	if len(out.Categories) == 0 {
		v.add("categories", "at least one category with a titled task is required")
	}

	if err := v.orNil(); err != nil {
		return models.TemplateRequest{}, err
	}
	return out, nil
}

// CreateTemplate validates and stores a new template
func (m *StoreManager) CreateTemplate(ctx context.Context, req models.TemplateRequest) (*models.Template, error) {
	clean, err := normalizeTemplate(req)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	tmpl := &models.Template{
		ID:            uuid.New().String(),
		Name:          clean.Name,
		Description:   clean.Description,
		EstimatedDays: clean.EstimatedDays,
		Categories:    clean.Categories,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.repo.CreateTemplate(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	slog.Info("template created",
		"id", tmpl.ID,
		"name", tmpl.Name,
		"tasks", tmpl.Categories.TaskCount(),
	)

	return tmpl, nil
}

// UpdateTemplate replaces a template wholesale. Existing checklists keep
// the categories they were created with.
func (m *StoreManager) UpdateTemplate(ctx context.Context, id string, req models.TemplateRequest) (*models.Template, error) {
	tmpl, err := m.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	clean, err := normalizeTemplate(req)
	if err != nil {
		return nil, err
	}

	tmpl.Name = clean.Name
	tmpl.Description = clean.Description
	tmpl.EstimatedDays = clean.EstimatedDays
	tmpl.Categories = clean.Categories
	tmpl.UpdatedAt = m.clock()

	if err := m.repo.UpdateTemplate(ctx, tmpl); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	slog.Info("template updated", "id", tmpl.ID, "name", tmpl.Name)

	return tmpl, nil
}

// GetTemplate returns a template by id
func (m *StoreManager) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	tmpl, err := m.repo.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

// ListTemplates returns all templates, newest first
func (m *StoreManager) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	list, err := m.repo.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	if list == nil {
		list = []*models.Template{}
	}
	return list, nil
}

// DeleteTemplate removes a template. Checklists created from it keep their
// categories; their template reference is cleared by the store.
func (m *StoreManager) DeleteTemplate(ctx context.Context, id string) error {
	if err := m.repo.DeleteTemplate(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTemplateNotFound
		}
		return fmt.Errorf("failed to delete template: %w", err)
	}

	slog.Info("template deleted", "id", id)
	return nil
}

// ImportTemplate creates a template or, when one with the same name
// exists, replaces it. It reports whether a new template was created.
func (m *StoreManager) ImportTemplate(ctx context.Context, req models.TemplateRequest) (*models.Template, bool, error) {
	existing, err := m.repo.GetTemplateByName(ctx, strings.TrimSpace(req.Name))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		tmpl, err := m.CreateTemplate(ctx, req)
		return tmpl, err == nil, err
	case err != nil:
		return nil, false, fmt.Errorf("failed to look up template: %w", err)
	}

	tmpl, err := m.UpdateTemplate(ctx, existing.ID, req)
	return tmpl, false, err
}
