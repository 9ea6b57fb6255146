package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind discriminates the payload carried by a TaskValue
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueString
	ValueNumber
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueBool:
		return "bool"
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	}
	return "unknown"
}

// TaskValue is the answer a customer gave for a single task.
// On the wire and in storage it is a plain JSON scalar (or null).
type TaskValue struct {
	kind ValueKind
	b    bool
	s    string
	n    float64
}

// NullValue returns the "no answer" value
func NullValue() TaskValue { return TaskValue{} }

// BoolValue wraps a checkbox answer
func BoolValue(b bool) TaskValue { return TaskValue{kind: ValueBool, b: b} }

// StringValue wraps a text or file-name answer
func StringValue(s string) TaskValue { return TaskValue{kind: ValueString, s: s} }

// NumberValue wraps a numeric answer
func NumberValue(n float64) TaskValue { return TaskValue{kind: ValueNumber, n: n} }

// Kind returns the discriminator
func (v TaskValue) Kind() ValueKind { return v.kind }

// IsNull reports whether the value carries no answer
func (v TaskValue) IsNull() bool { return v.kind == ValueNull }

// AsBool returns the boolean payload and whether the value is a bool
func (v TaskValue) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// AsString returns the string payload and whether the value is a string
func (v TaskValue) AsString() (string, bool) { return v.s, v.kind == ValueString }

// AsNumber returns the numeric payload and whether the value is a number
func (v TaskValue) AsNumber() (float64, bool) { return v.n, v.kind == ValueNumber }

// Equal compares kind and payload
func (v TaskValue) Equal(o TaskValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueBool:
		return v.b == o.b
	case ValueString:
		return v.s == o.s
	case ValueNumber:
		return v.n == o.n
	}
	return true
}

func (v TaskValue) String() string {
	switch v.kind {
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueString:
		return strconv.Quote(v.s)
	case ValueNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	}
	return "null"
}

// MarshalJSON encodes the value as a bare JSON scalar
func (v TaskValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueBool:
		return json.Marshal(v.b)
	case ValueString:
		return json.Marshal(v.s)
	case ValueNumber:
		return json.Marshal(v.n)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts null, booleans, strings and numbers. Objects and
// arrays are rejected.
func (v *TaskValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = NullValue()
		return nil
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid task value: %w", err)
	}

	switch x := raw.(type) {
	case bool:
		*v = BoolValue(x)
	case string:
		*v = StringValue(x)
	case float64:
		*v = NumberValue(x)
	default:
		return fmt.Errorf("invalid task value: unsupported JSON type %T", raw)
	}
	return nil
}

// TaskStates maps task ids to the customer's answers. A missing key and an
// explicit null are equivalent.
type TaskStates map[string]TaskValue

// Get returns the value for a task id, NullValue when absent
func (s TaskStates) Get(taskID string) TaskValue {
	if s == nil {
		return NullValue()
	}
	return s[taskID]
}

// Clone returns an independent copy
func (s TaskStates) Clone() TaskStates {
	out := make(TaskStates, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// With returns a copy with taskID set to value. A null value removes the key.
func (s TaskStates) With(taskID string, value TaskValue) TaskStates {
	out := s.Clone()
	if value.IsNull() {
		delete(out, taskID)
	} else {
		out[taskID] = value
	}
	return out
}

// Equal reports whether both mappings hold the same answers
func (s TaskStates) Equal(o TaskStates) bool {
	for k, v := range s {
		if !v.Equal(o.Get(k)) {
			return false
		}
	}
	for k, v := range o {
		if !v.Equal(s.Get(k)) {
			return false
		}
	}
	return true
}
