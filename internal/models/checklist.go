package models

import (
	"crypto/rand"
	"math/big"
	"time"
)

// ChecklistStatus represents the lifecycle state of a checklist
type ChecklistStatus string

const (
	StatusDraft      ChecklistStatus = "draft"
	StatusSent       ChecklistStatus = "sent"        // Created, link not opened yet
	StatusInProgress ChecklistStatus = "in_progress" // Customer opened the link
	StatusCompleted  ChecklistStatus = "completed"   // All required tasks answered
	StatusOverdue    ChecklistStatus = "overdue"     // Due date passed before completion
)

// Valid reports whether s is a known status
func (s ChecklistStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusInProgress, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

// Checklist is a per-project instance of a template.
// It owns its own copy of the category tree; TemplateID is only a
// historical reference and may dangle once the template is deleted.
type Checklist struct {
	ID            string          `json:"id"`
	TemplateID    *string         `json:"template_id"`
	ProjectName   string          `json:"project_name"`
	MachineType   string          `json:"machine_type"`
	SerialNumber  string          `json:"serial_number"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone *string         `json:"customer_phone"`
	PublicToken   string          `json:"public_token"`
	Status        ChecklistStatus `json:"status"`
	DueDate       *time.Time      `json:"due_date"`
	Categories    Categories      `json:"categories"`
	TaskStates    TaskStates      `json:"task_states"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at"`
}

// IsPastDue reports whether the due date lies before now
func (c *Checklist) IsPastDue(now time.Time) bool {
	return c.DueDate != nil && c.DueDate.Before(now)
}

// IsOverdue is the derived overdue condition: past due and not completed.
// It does not depend on the stored status being "overdue".
func (c *Checklist) IsOverdue(now time.Time) bool {
	return c.IsPastDue(now) && c.Status != StatusCompleted
}

// IsLocked reports whether task values may no longer be changed. A status
// already materialized as overdue stays locked.
func (c *Checklist) IsLocked(now time.Time) bool {
	return c.IsOverdue(now) || c.Status == StatusOverdue
}

// EffectiveStatus returns the status to display: the stored status with the
// derived overdue condition applied on top.
func (c *Checklist) EffectiveStatus(now time.Time) ChecklistStatus {
	if c.IsOverdue(now) {
		return StatusOverdue
	}
	return c.Status
}

// Progress summarizes required-task completion
type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// ChecklistView is a checklist together with its derived state
type ChecklistView struct {
	*Checklist
	EffectiveStatus ChecklistStatus `json:"effective_status"`
	Locked          bool            `json:"locked"`
	Progress        Progress        `json:"progress"`
}

// ChecklistFilters narrows admin checklist listings
type ChecklistFilters struct {
	Search string          // matches project or customer name, case-insensitive
	Status ChecklistStatus // effective status; empty means all
	Limit  int
	Offset int
}

// ChecklistList is one page of an admin listing
type ChecklistList struct {
	Checklists []*ChecklistView `json:"checklists"`
	Total      int              `json:"total"` // matches before limit and offset
}

// ChecklistStats are the dashboard counters, by effective status
type ChecklistStats struct {
	Total      int `json:"total"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
}

// CreateChecklistRequest is the admin payload for instantiating a template
type CreateChecklistRequest struct {
	TemplateID    string     `json:"template_id"`
	ProjectName   string     `json:"project_name"`
	MachineType   string     `json:"machine_type,omitempty"`
	SerialNumber  string     `json:"serial_number,omitempty"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
}

// ChecklistResponse is an admin checklist together with its public link
type ChecklistResponse struct {
	Checklist *ChecklistView `json:"checklist"`
	PublicURL string         `json:"public_url"`
}

// SetTaskValueRequest is the public payload for answering a task. The value
// key is required; an explicit null clears the answer.
type SetTaskValueRequest struct {
	Value TaskValue `json:"value"`
}

// GeneratePublicToken creates a cryptographically random base-36 token
func GeneratePublicToken() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(bytes).Text(36), nil
}
