// Package events carries checklist change notifications from the lifecycle
// manager to live subscribers (admin dashboards, open public links).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/terra-clan/checklist-engine/internal/models"
)

// EventType names a checklist change
type EventType string

const (
	EventCreated     EventType = "checklist.created"
	EventOpened      EventType = "checklist.opened"
	EventTaskUpdated EventType = "checklist.task_updated"
	EventCompleted   EventType = "checklist.completed"
	EventOverdue     EventType = "checklist.overdue"
	EventDeleted     EventType = "checklist.deleted"
)

// ChecklistEvent is published after a checklist change is persisted
type ChecklistEvent struct {
	Type        EventType              `json:"type"`
	ChecklistID string                 `json:"checklist_id"`
	Status      models.ChecklistStatus `json:"status"`
	Progress    models.Progress        `json:"progress"`
	TaskID      string                 `json:"task_id,omitempty"`
	Value       *models.TaskValue      `json:"value,omitempty"`
	At          time.Time              `json:"at"`
}

// Broker fans checklist events out to subscribers
type Broker interface {
	// Publish delivers ev to current subscribers of ev.ChecklistID.
	Publish(ctx context.Context, ev ChecklistEvent) error
	// Subscribe streams events for one checklist until ctx is done,
	// then closes the channel. An empty checklistID receives every event.
	Subscribe(ctx context.Context, checklistID string) (<-chan ChecklistEvent, error)
	Ping(ctx context.Context) error
	Close() error
}

// subscriberBuffer is the per-subscriber queue; slow readers lose events
const subscriberBuffer = 32

func encodeEvent(ev ChecklistEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (ChecklistEvent, error) {
	var ev ChecklistEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode event: %w", err)
	}
	return ev, nil
}
