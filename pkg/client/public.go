package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/terra-clan/checklist-engine/internal/models"
	"github.com/terra-clan/checklist-engine/internal/progress"
)

// PublicChecklist is the customer's view of a checklist behind a public
// link. Writes are applied locally first and rolled back when the server
// rejects them or cannot be reached.
type PublicChecklist struct {
	client *Client
	token  string
	now    func() time.Time

	writeMu sync.Mutex // one task edit in flight at a time

	mu   sync.RWMutex
	view *models.ChecklistView
}

// OpenChecklist resolves token and returns its view. Opening a checklist
// the first time marks it in progress on the server.
func (c *Client) OpenChecklist(ctx context.Context, token string) (*PublicChecklist, error) {
	view, err := c.GetPublicChecklist(ctx, token)
	if err != nil {
		return nil, err
	}
	return &PublicChecklist{
		client: c,
		token:  token,
		now:    time.Now,
		view:   view,
	}, nil
}

// View returns a copy of the current local state
func (p *PublicChecklist) View() *models.ChecklistView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneView(p.view)
}

// Locked reports whether edits are refused
func (p *PublicChecklist) Locked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view.Locked || p.view.IsLocked(p.now().UTC())
}

// SetTaskValue answers a task. The local view reflects the new value
// immediately; on failure it is restored and an *APIError (or transport
// error) is returned. Overdue checklists are refused without a request.
func (p *PublicChecklist) SetTaskValue(ctx context.Context, taskID string, value models.TaskValue) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.Locked() {
		return &APIError{
			StatusCode: http.StatusLocked,
			Code:       CodeLocked,
			Message:    "checklist is overdue and can no longer be edited",
		}
	}

	p.mu.Lock()
	snapshot := p.view
	task, ok := snapshot.Categories.FindTask(taskID)
	if !ok {
		p.mu.Unlock()
		return &APIError{
			StatusCode: http.StatusNotFound,
			Code:       CodeTaskNotFound,
			Message:    "task not found in checklist",
		}
	}
	if !task.Type.Accepts(value) {
		p.mu.Unlock()
		return &APIError{
			StatusCode: http.StatusBadRequest,
			Code:       CodeInvalidValue,
			Message:    "value does not match task type " + string(task.Type),
		}
	}
	p.view = optimistic(snapshot, taskID, value, p.now().UTC())
	p.mu.Unlock()

	view, err := p.client.SetTaskValue(ctx, p.token, taskID, value)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.view = snapshot
		return err
	}
	p.view = view
	return nil
}

// Refresh reloads the view from the server
func (p *PublicChecklist) Refresh(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	view, err := p.client.GetPublicChecklist(ctx, p.token)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.view = view
	p.mu.Unlock()
	return nil
}

// IsLocked reports whether err is the overdue lock, from the server or
// from the local check
func IsLocked(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeLocked
}

// optimistic returns the view the server is expected to answer with
func optimistic(v *models.ChecklistView, taskID string, value models.TaskValue, now time.Time) *models.ChecklistView {
	next := cloneView(v)
	next.TaskStates = v.TaskStates.With(taskID, value)

	if progress.AllRequiredComplete(next.Categories, next.TaskStates) {
		next.Status = models.StatusCompleted
		if next.CompletedAt == nil {
			next.CompletedAt = &now
		}
	} else {
		next.Status = models.StatusInProgress
	}
	next.UpdatedAt = now
	next.Progress = progress.ForChecklist(next.Checklist)
	next.EffectiveStatus = next.Checklist.EffectiveStatus(now)
	next.Locked = next.IsLocked(now)
	return next
}

func cloneView(v *models.ChecklistView) *models.ChecklistView {
	c := *v.Checklist
	c.TaskStates = v.TaskStates.Clone()
	return &models.ChecklistView{
		Checklist:       &c,
		EffectiveStatus: v.EffectiveStatus,
		Locked:          v.Locked,
		Progress:        v.Progress,
	}
}
