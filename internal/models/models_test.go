package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskValueJSON(t *testing.T) {
	tests := []struct {
		in   string
		kind ValueKind
		out  string
	}{
		{`null`, ValueNull, `null`},
		{`true`, ValueBool, `true`},
		{`false`, ValueBool, `false`},
		{`"true"`, ValueString, `"true"`},
		{`""`, ValueString, `""`},
		{`0`, ValueNumber, `0`},
		{`12.5`, ValueNumber, `12.5`},
	}

	for _, tt := range tests {
		var v TaskValue
		require.NoError(t, json.Unmarshal([]byte(tt.in), &v), tt.in)
		assert.Equal(t, tt.kind, v.Kind(), tt.in)

		out, err := json.Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, tt.out, string(out))
	}
}

func TestTaskValueRejectsComposites(t *testing.T) {
	var v TaskValue
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &v))
}

func TestTaskStatesDecodeFromStoredObject(t *testing.T) {
	var states TaskStates
	raw := `{"a": true, "b": "text", "c": 0, "d": null}`
	require.NoError(t, json.Unmarshal([]byte(raw), &states))

	assert.True(t, states.Get("a").Equal(BoolValue(true)))
	assert.True(t, states.Get("b").Equal(StringValue("text")))
	assert.True(t, states.Get("c").Equal(NumberValue(0)))
	assert.True(t, states.Get("d").IsNull())
	assert.True(t, states.Get("missing").IsNull())

	// explicit null and absent are the same answer
	assert.True(t, states.Equal(TaskStates{"a": BoolValue(true), "b": StringValue("text"), "c": NumberValue(0)}))
}

func TestTaskStatesWithDoesNotMutate(t *testing.T) {
	orig := TaskStates{"a": BoolValue(true)}

	next := orig.With("b", StringValue("x"))
	assert.Len(t, orig, 1)
	assert.Len(t, next, 2)

	cleared := next.With("a", NullValue())
	_, present := cleared["a"]
	assert.False(t, present)
	assert.Len(t, next, 2)
}

func TestTaskTypeAccepts(t *testing.T) {
	assert.True(t, TaskCheckbox.Accepts(BoolValue(false)))
	assert.False(t, TaskCheckbox.Accepts(StringValue("true")))
	assert.True(t, TaskNumber.Accepts(NumberValue(3)))
	assert.False(t, TaskNumber.Accepts(StringValue("3")))
	assert.True(t, TaskText.Accepts(StringValue("")))
	assert.True(t, TaskFile.Accepts(StringValue("a.pdf")))
	assert.False(t, TaskFile.Accepts(BoolValue(true)))
	for _, typ := range []TaskType{TaskCheckbox, TaskText, TaskNumber, TaskFile} {
		assert.True(t, typ.Accepts(NullValue()), typ)
	}
	assert.False(t, TaskType("date").Valid())
}

func TestCategoriesCloneIsDeep(t *testing.T) {
	orig := Categories{{ID: "c", Name: "Mech", Tasks: []Task{{ID: "t1", Title: "Bolts", Type: TaskCheckbox, Required: true}}}}
	cp := orig.Clone()

	cp[0].Name = "changed"
	cp[0].Tasks[0].Title = "changed"

	assert.Equal(t, "Mech", orig[0].Name)
	assert.Equal(t, "Bolts", orig[0].Tasks[0].Title)
	assert.Equal(t, "t1", cp[0].Tasks[0].ID)

	task, ok := orig.FindTask("t1")
	assert.True(t, ok)
	assert.Equal(t, "Bolts", task.Title)
	_, ok = orig.FindTask("nope")
	assert.False(t, ok)
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	c := &Checklist{Status: StatusInProgress, DueDate: &past}
	assert.Equal(t, StatusOverdue, c.EffectiveStatus(now))
	assert.True(t, c.IsLocked(now))
	assert.Equal(t, StatusInProgress, c.Status)

	c.Status = StatusCompleted
	assert.Equal(t, StatusCompleted, c.EffectiveStatus(now))
	assert.False(t, c.IsLocked(now))

	c = &Checklist{Status: StatusSent, DueDate: &future}
	assert.Equal(t, StatusSent, c.EffectiveStatus(now))

	c = &Checklist{Status: StatusSent}
	assert.False(t, c.IsOverdue(now))
}

func TestGeneratePublicToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GeneratePublicToken()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(tok), 30)
		assert.Regexp(t, `^[0-9a-z]+$`, tok)
		assert.False(t, seen[tok], "duplicate token")
		seen[tok] = true
	}
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "admin", NormalizeUsername("  Admin "))
}
