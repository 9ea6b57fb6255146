package checklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/terra-clan/checklist-engine/internal/events"
	"github.com/terra-clan/checklist-engine/internal/models"
	"github.com/terra-clan/checklist-engine/internal/progress"
	"github.com/terra-clan/checklist-engine/internal/storage"
)

// Manager defines the interface for template and checklist management
type Manager interface {
	// Templates
	CreateTemplate(ctx context.Context, req models.TemplateRequest) (*models.Template, error)
	UpdateTemplate(ctx context.Context, id string, req models.TemplateRequest) (*models.Template, error)
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]*models.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	ImportTemplate(ctx context.Context, req models.TemplateRequest) (*models.Template, bool, error)

	// Checklists (admin)
	CreateChecklist(ctx context.Context, req models.CreateChecklistRequest) (*models.ChecklistView, error)
	GetChecklist(ctx context.Context, id string) (*models.ChecklistView, error)
	ListChecklists(ctx context.Context, filters models.ChecklistFilters) (*models.ChecklistList, error)
	Stats(ctx context.Context) (models.ChecklistStats, error)
	DeleteChecklist(ctx context.Context, id string) error

	// Public link
	ResolveToken(ctx context.Context, token string) (*models.ChecklistView, error)
	SetTaskValue(ctx context.Context, token, taskID string, value models.TaskValue) (*models.ChecklistView, error)

	// Background
	MarkOverdue(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
}

// Option configures a StoreManager
type Option func(*StoreManager)

// WithBroker publishes change events to b
func WithBroker(b events.Broker) Option {
	return func(m *StoreManager) { m.broker = b }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *StoreManager) { m.now = now }
}

// StoreManager implements Manager on top of a storage.Repository
type StoreManager struct {
	repo   storage.Repository
	broker events.Broker
	now    func() time.Time
}

// NewManager creates a new StoreManager
func NewManager(repo storage.Repository, opts ...Option) *StoreManager {
	m := &StoreManager{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ping checks if the manager is operational
func (m *StoreManager) Ping(ctx context.Context) error {
	if err := m.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (m *StoreManager) clock() time.Time {
	return m.now().UTC()
}

// view attaches derived state to c
func (m *StoreManager) view(c *models.Checklist, now time.Time) *models.ChecklistView {
	return &models.ChecklistView{
		Checklist:       c,
		EffectiveStatus: c.EffectiveStatus(now),
		Locked:          c.IsLocked(now),
		Progress:        progress.ForChecklist(c),
	}
}

// publish sends an event; failures are logged and never fail the caller
func (m *StoreManager) publish(ctx context.Context, typ events.EventType, c *models.Checklist, now time.Time) {
	m.publishEvent(ctx, events.ChecklistEvent{
		Type:        typ,
		ChecklistID: c.ID,
		Status:      c.EffectiveStatus(now),
		Progress:    progress.ForChecklist(c),
		At:          now,
	})
}

func (m *StoreManager) publishEvent(ctx context.Context, ev events.ChecklistEvent) {
	if m.broker == nil {
		return
	}
	if err := m.broker.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish checklist event",
			"type", ev.Type,
			"checklist_id", ev.ChecklistID,
			"error", err,
		)
	}
}

// CreateChecklist instantiates a template into a new checklist
func (m *StoreManager) CreateChecklist(ctx context.Context, req models.CreateChecklistRequest) (*models.ChecklistView, error) {
	input, err := normalizeChecklistRequest(req)
	if err != nil {
		return nil, err
	}

	tmpl, err := m.repo.GetTemplate(ctx, input.TemplateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	now := m.clock()
	c, err := instantiate(tmpl, input, now)
	if err != nil {
		return nil, err
	}

	if err := m.repo.CreateChecklist(ctx, c); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, fmt.Errorf("failed to create checklist: %w", err)
	}

	slog.Info("checklist created",
		"id", c.ID,
		"template", tmpl.ID,
		"project", c.ProjectName,
		"due_date", c.DueDate,
	)

	m.publish(ctx, events.EventCreated, c, now)

	return m.view(c, now), nil
}

// GetChecklist returns a checklist by internal id
func (m *StoreManager) GetChecklist(ctx context.Context, id string) (*models.ChecklistView, error) {
	c, err := m.repo.GetChecklist(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChecklistNotFound
		}
		return nil, fmt.Errorf("failed to get checklist: %w", err)
	}
	return m.view(c, m.clock()), nil
}

// ListChecklists returns one page of checklists matching filters, newest
// first, with the number of matches across all pages
func (m *StoreManager) ListChecklists(ctx context.Context, filters models.ChecklistFilters) (*models.ChecklistList, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		v := &ValidationError{}
		v.add("status", fmt.Sprintf("unknown status %q", filters.Status))
		return nil, v
	}

	now := m.clock()
	list, err := m.repo.ListChecklists(ctx, filters, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list checklists: %w", err)
	}

	total, err := m.repo.CountMatchingChecklists(ctx, filters, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count checklists: %w", err)
	}

	views := make([]*models.ChecklistView, 0, len(list))
	for _, c := range list {
		views = append(views, m.view(c, now))
	}
	return &models.ChecklistList{Checklists: views, Total: total}, nil
}

// Stats returns dashboard counters by effective status
func (m *StoreManager) Stats(ctx context.Context) (models.ChecklistStats, error) {
	stats, err := m.repo.CountChecklists(ctx, m.clock())
	if err != nil {
		return stats, fmt.Errorf("failed to count checklists: %w", err)
	}
	return stats, nil
}

// DeleteChecklist removes a checklist. Its public link stops resolving.
func (m *StoreManager) DeleteChecklist(ctx context.Context, id string) error {
	c, err := m.repo.GetChecklist(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrChecklistNotFound
		}
		return fmt.Errorf("failed to get checklist: %w", err)
	}

	if err := m.repo.DeleteChecklist(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrChecklistNotFound
		}
		return fmt.Errorf("failed to delete checklist: %w", err)
	}

	slog.Info("checklist deleted", "id", id)

	m.publish(ctx, events.EventDeleted, c, m.clock())

	return nil
}

// ResolveToken returns the checklist behind a public link. The first open
// of a sent checklist moves it to in_progress.
func (m *StoreManager) ResolveToken(ctx context.Context, token string) (*models.ChecklistView, error) {
	c, err := m.getByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	if c.Status == models.StatusSent {
		opened, err := m.repo.MarkChecklistOpened(ctx, c.ID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to mark checklist opened: %w", err)
		}
		if opened {
			c.Status = models.StatusInProgress
			c.UpdatedAt = now

			slog.Info("checklist opened", "id", c.ID)
			m.publish(ctx, events.EventOpened, c, now)
		} else if c, err = m.getByToken(ctx, token); err != nil {
			// opened, swept or deleted since the read
			return nil, err
		}
	}

	return m.view(c, now), nil
}

func (m *StoreManager) getByToken(ctx context.Context, token string) (*models.Checklist, error) {
	if token == "" {
		return nil, ErrChecklistNotFound
	}
	c, err := m.repo.GetChecklistByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChecklistNotFound
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	return c, nil
}

// SetTaskValue stores one answer and re-derives the checklist status.
// Nothing is written when validation or the store fails.
func (m *StoreManager) SetTaskValue(ctx context.Context, token, taskID string, value models.TaskValue) (*models.ChecklistView, error) {
	c, err := m.getByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	if c.IsLocked(now) {
		return nil, ErrChecklistLocked
	}

	task, ok := c.Categories.FindTask(taskID)
	if !ok {
		return nil, ErrTaskNotFound
	}
	if !task.Type.Accepts(value) {
		return nil, fmt.Errorf("%w: %s task cannot hold %s", ErrInvalidTaskValue, task.Type, value.Kind())
	}

	states := c.TaskStates.With(taskID, value)
	upd := storage.ChecklistProgressUpdate{
		Status:     models.StatusInProgress,
		TaskStates: states,
		UpdatedAt:  now,
	}
	if progress.AllRequiredComplete(c.Categories, states) {
		upd.Status = models.StatusCompleted
		if c.CompletedAt == nil {
			upd.CompletedAt = &now
		}
	}

	if err := m.repo.SaveChecklistProgress(ctx, c.ID, upd); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChecklistNotFound
		}
		return nil, fmt.Errorf("failed to save task value: %w", err)
	}

	wasCompleted := c.Status == models.StatusCompleted
	c.TaskStates = states
	c.Status = upd.Status
	c.UpdatedAt = now
	if upd.CompletedAt != nil {
		c.CompletedAt = upd.CompletedAt
	}

	v := value
	m.publishEvent(ctx, events.ChecklistEvent{
		Type:        events.EventTaskUpdated,
		ChecklistID: c.ID,
		Status:      c.EffectiveStatus(now),
		Progress:    progress.ForChecklist(c),
		TaskID:      taskID,
		Value:       &v,
		At:          now,
	})

	if c.Status == models.StatusCompleted && !wasCompleted {
		slog.Info("checklist completed", "id", c.ID, "completed_at", c.CompletedAt)
		m.publish(ctx, events.EventCompleted, c, now)
	}

	return m.view(c, now), nil
}

// MarkOverdue persists status overdue for open checklists past their due
// date and returns how many were updated
func (m *StoreManager) MarkOverdue(ctx context.Context) (int, error) {
	now := m.clock()

	list, err := m.repo.GetOverdueChecklists(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to get overdue checklists: %w", err)
	}

	marked := 0
	for _, c := range list {
		if err := ctx.Err(); err != nil {
			return marked, err
		}

		if err := m.repo.UpdateChecklistStatus(ctx, c.ID, models.StatusOverdue, now); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			slog.Error("failed to mark checklist overdue", "id", c.ID, "error", err)
			continue
		}

		c.Status = models.StatusOverdue
		c.UpdatedAt = now
		marked++

		slog.Info("checklist marked overdue", "id", c.ID, "due_date", c.DueDate)
		m.publish(ctx, events.EventOverdue, c, now)
	}

	return marked, nil
}
