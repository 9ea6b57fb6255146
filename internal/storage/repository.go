package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/checklist-engine/internal/models"
)

var (
	// ErrNotFound is returned when a lookup, update or delete matches no row
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("unique constraint violation")
)

// ChecklistProgressUpdate is the write issued after a task value changes.
// The whole task_states object is replaced; there is no field-level merge.
type ChecklistProgressUpdate struct {
	Status      models.ChecklistStatus
	TaskStates  models.TaskStates
	CompletedAt *time.Time // nil leaves the stored value untouched
	UpdatedAt   time.Time
}

// Repository defines the interface for checklist persistence
type Repository interface {
	// Templates
	CreateTemplate(ctx context.Context, t *models.Template) error
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	GetTemplateByName(ctx context.Context, name string) (*models.Template, error)
	UpdateTemplate(ctx context.Context, t *models.Template) error
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplates(ctx context.Context) ([]*models.Template, error)

	// Checklists
	CreateChecklist(ctx context.Context, c *models.Checklist) error
	GetChecklist(ctx context.Context, id string) (*models.Checklist, error)
	GetChecklistByToken(ctx context.Context, token string) (*models.Checklist, error)
	MarkChecklistOpened(ctx context.Context, id string, at time.Time) (bool, error)
	UpdateChecklistStatus(ctx context.Context, id string, status models.ChecklistStatus, updatedAt time.Time) error
	SaveChecklistProgress(ctx context.Context, id string, upd ChecklistProgressUpdate) error
	DeleteChecklist(ctx context.Context, id string) error
	ListChecklists(ctx context.Context, filters models.ChecklistFilters, now time.Time) ([]*models.Checklist, error)
	CountMatchingChecklists(ctx context.Context, filters models.ChecklistFilters, now time.Time) (int, error)
	CountChecklists(ctx context.Context, now time.Time) (models.ChecklistStats, error)
	GetOverdueChecklists(ctx context.Context, now time.Time) ([]*models.Checklist, error)

	// Admin users
	CreateAdminUser(ctx context.Context, u *models.AdminUser) error
	GetAdminUser(ctx context.Context, id string) (*models.AdminUser, error)
	GetAdminUserByUsername(ctx context.Context, username string) (*models.AdminUser, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
