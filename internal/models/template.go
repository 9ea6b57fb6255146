package models

import (
	"time"
)

// TaskType determines how a task is answered and when it counts as done
type TaskType string

const (
	TaskCheckbox TaskType = "checkbox"
	TaskText     TaskType = "text"
	TaskNumber   TaskType = "number"
	TaskFile     TaskType = "file"
)

// DefaultEstimatedDays is used when a template does not specify a duration
const DefaultEstimatedDays = 14

// Valid reports whether t is a known task type
func (t TaskType) Valid() bool {
	switch t {
	case TaskCheckbox, TaskText, TaskNumber, TaskFile:
		return true
	}
	return false
}

// Accepts reports whether a value of the given kind may be stored for this
// task type. Null is always accepted (it clears the answer).
func (t TaskType) Accepts(v TaskValue) bool {
	if v.IsNull() {
		return true
	}
	switch t {
	case TaskCheckbox:
		return v.Kind() == ValueBool
	case TaskNumber:
		return v.Kind() == ValueNumber
	case TaskText, TaskFile:
		return v.Kind() == ValueString
	}
	return false
}

// Task is a single checklist item
type Task struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Type        TaskType `json:"type" yaml:"type"`
	Required    bool     `json:"required" yaml:"required"`
}

// Category is an ordered, named group of tasks
type Category struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Tasks []Task `json:"tasks" yaml:"tasks"`
}

// Categories is the ordered task tree shared by templates and checklists
type Categories []Category

// Clone returns a deep copy. Task ids are preserved.
func (c Categories) Clone() Categories {
	if c == nil {
		return Categories{}
	}
	out := make(Categories, len(c))
	for i, cat := range c {
		tasks := make([]Task, len(cat.Tasks))
		copy(tasks, cat.Tasks)
		out[i] = Category{ID: cat.ID, Name: cat.Name, Tasks: tasks}
	}
	return out
}

// FindTask looks up a task by id across all categories
func (c Categories) FindTask(taskID string) (Task, bool) {
	for _, cat := range c {
		for _, t := range cat.Tasks {
			if t.ID == taskID {
				return t, true
			}
		}
	}
	return Task{}, false
}

// TaskCount returns the number of tasks in the tree
func (c Categories) TaskCount() int {
	n := 0
	for _, cat := range c {
		n += len(cat.Tasks)
	}
	return n
}

// Template is a reusable checklist definition
type Template struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	EstimatedDays int        `json:"estimated_days"`
	Categories    Categories `json:"categories"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TemplateRequest is the admin payload for creating or replacing a template
type TemplateRequest struct {
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	EstimatedDays int        `json:"estimated_days,omitempty"`
	Categories    Categories `json:"categories"`
}
