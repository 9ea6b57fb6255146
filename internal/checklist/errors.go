package checklist

import (
	"errors"
	"sort"
	"strings"
)

// Common errors
var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrChecklistNotFound = errors.New("checklist not found")
	ErrTaskNotFound      = errors.New("task not found in checklist")
	ErrChecklistLocked   = errors.New("checklist is overdue and locked")
	ErrInvalidTaskValue  = errors.New("value does not match task type")
	ErrConflict          = errors.New("checklist conflicts with an existing record")
)

// ValidationError lists field problems in a request
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// add records a problem for field; the first message wins
func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// orNil returns e when it holds problems
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsValidation reports whether err is a *ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
