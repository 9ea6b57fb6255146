package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/terra-clan/checklist-engine/internal/models"
)

// Queries are written with '?' placeholders; the PostgreSQL repository
// rebinds them to $n.

const templateColumns = `id, name, description, estimated_days, categories, created_at, updated_at`

const checklistColumns = `id, template_id, project_name, machine_type, serial_number,
	customer_name, customer_email, customer_phone, public_token, status, due_date,
	categories, task_states, created_at, updated_at, completed_at`

const adminUserColumns = `id, username, display_name, password_hash, created_at`

// overdueCondition matches the derived overdue state. It needs one time argument.
const overdueCondition = `(status = 'overdue' OR (status <> 'completed' AND due_date IS NOT NULL AND due_date < ?))`

// checklistFilterClause returns the WHERE clause shared by the admin listing
// and its count. timeArg converts time values to the driver representation.
func checklistFilterClause(filters models.ChecklistFilters, now time.Time, timeArg func(time.Time) interface{}) (string, []interface{}) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)

	if s := strings.TrimSpace(filters.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		where += ` AND (LOWER(project_name) LIKE ? ESCAPE '\' OR LOWER(customer_name) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}

	switch filters.Status {
	case "":
	case models.StatusOverdue:
		where += ` AND ` + overdueCondition
		args = append(args, timeArg(now))
	default:
		where += ` AND status = ? AND NOT ` + overdueCondition
		args = append(args, string(filters.Status), timeArg(now))
	}

	return where, args
}

// checklistListQuery builds the admin listing query for the given filters
func checklistListQuery(filters models.ChecklistFilters, now time.Time, timeArg func(time.Time) interface{}) (string, []interface{}) {
	where, args := checklistFilterClause(filters, now, timeArg)
	query := `SELECT ` + checklistColumns + ` FROM checklists` + where + ` ORDER BY created_at DESC`

	if filters.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filters.Limit)
		if filters.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filters.Offset)
		}
	}

	return query, args
}

// checklistCountQuery counts the rows checklistListQuery would return
// without limit and offset
func checklistCountQuery(filters models.ChecklistFilters, now time.Time, timeArg func(time.Time) interface{}) (string, []interface{}) {
	where, args := checklistFilterClause(filters, now, timeArg)
	return `SELECT COUNT(*) FROM checklists` + where, args
}

// checklistStatsQuery counts checklists by effective status
func checklistStatsQuery(now time.Time, timeArg func(time.Time) interface{}) (string, []interface{}) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'in_progress' AND NOT ` + overdueCondition + ` THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ` + overdueCondition + ` THEN 1 ELSE 0 END), 0)
		FROM checklists
	`
	t := timeArg(now)
	return query, []interface{}{t, t}
}

// overdueCandidatesQuery selects checklists the sweeper should mark overdue
func overdueCandidatesQuery(now time.Time, timeArg func(time.Time) interface{}) (string, []interface{}) {
	query := `SELECT ` + checklistColumns + `
		FROM checklists
		WHERE status IN ('sent', 'in_progress')
		  AND due_date IS NOT NULL
		  AND due_date < ?
		ORDER BY due_date ASC`
	return query, []interface{}{timeArg(now)}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func marshalCategories(c models.Categories) ([]byte, error) {
	if c == nil {
		c = models.Categories{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal categories: %w", err)
	}
	return data, nil
}

func marshalTaskStates(s models.TaskStates) ([]byte, error) {
	if s == nil {
		s = models.TaskStates{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task states: %w", err)
	}
	return data, nil
}

func unmarshalCategories(data []byte) (models.Categories, error) {
	cats := models.Categories{}
	if len(data) == 0 {
		return cats, nil
	}
	if err := json.Unmarshal(data, &cats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}
	return cats, nil
}

func unmarshalTaskStates(data []byte) (models.TaskStates, error) {
	states := models.TaskStates{}
	if len(data) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task states: %w", err)
	}
	return states, nil
}
