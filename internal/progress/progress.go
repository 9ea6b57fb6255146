// Package progress derives completion state from a checklist's task tree and
// the customer's answers. Everything here is pure.
package progress

import (
	"github.com/terra-clan/checklist-engine/internal/models"
)

// IsTaskComplete applies the per-type completion rule to a single answer.
// Checkboxes need an actual boolean true; every other type needs a value
// that is neither null nor the empty string (0 and false count).
func IsTaskComplete(task models.Task, value models.TaskValue) bool {
	switch task.Type {
	case models.TaskCheckbox:
		b, ok := value.AsBool()
		return ok && b
	case models.TaskText, models.TaskNumber, models.TaskFile:
		return hasAnswer(value)
	}
	// Unknown types are treated like free-form answers.
	return hasAnswer(value)
}

func hasAnswer(value models.TaskValue) bool {
	switch value.Kind() {
	case models.ValueNull:
		return false
	case models.ValueString:
		s, _ := value.AsString()
		return s != ""
	case models.ValueBool, models.ValueNumber:
		return true
	}
	return false
}

// Calculate counts required tasks and how many of them are complete.
// Percentage is rounded half up; a tree without required tasks is 0%.
func Calculate(categories models.Categories, states models.TaskStates) models.Progress {
	var p models.Progress
	for _, cat := range categories {
		for _, task := range cat.Tasks {
			if !task.Required {
				continue
			}
			p.Total++
			if IsTaskComplete(task, states.Get(task.ID)) {
				p.Completed++
			}
		}
	}
	p.Percentage = Percentage(p.Completed, p.Total)
	return p
}

// Percentage returns round(completed/total*100) with halves rounded up,
// computed in integers so 1/8 gives 13 and not 12.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*completed + total) / (2 * total)
}

// AllRequiredComplete reports whether every required task is satisfied.
// A tree without required tasks is trivially complete.
func AllRequiredComplete(categories models.Categories, states models.TaskStates) bool {
	for _, cat := range categories {
		for _, task := range cat.Tasks {
			if task.Required && !IsTaskComplete(task, states.Get(task.ID)) {
				return false
			}
		}
	}
	return true
}

// ForChecklist is Calculate applied to a stored checklist
func ForChecklist(c *models.Checklist) models.Progress {
	return Calculate(c.Categories, c.TaskStates)
}
