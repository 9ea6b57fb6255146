package templates

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/checklist-engine/internal/checklist"
	"github.com/terra-clan/checklist-engine/internal/models"
	"github.com/terra-clan/checklist-engine/internal/storage/storagetest"
)

func TestLoadFromDir(t *testing.T) {
	// Use the bundled templates directory
	templatesDir := filepath.Join("..", "..", "templates")

	if _, err := os.Stat(templatesDir); os.IsNotExist(err) {
		t.Skip("templates directory not found, skipping")
	}

	files, err := LoadFromDir(templatesDir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	electrical := files[0].Template
	assert.Equal(t, "Electrical cabinet commissioning", electrical.Name)
	assert.Equal(t, 14, electrical.EstimatedDays)
	require.Len(t, electrical.Categories, 2)

	task, ok := electrical.Categories.FindTask("site-foundation")
	require.True(t, ok)
	assert.Equal(t, models.TaskNumber, task.Type)
	assert.True(t, task.Required)
	assert.Equal(t, "Measured length of the prepared foundation.", task.Description)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFromDirSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", `
name: Good
categories:
  - name: One
    tasks:
      - title: Do it
`)
	writeFile(t, dir, "nested/also-good.yml", `
name: Nested
categories:
  - name: One
    tasks:
      - title: Do it
`)
	writeFile(t, dir, "no-name.yaml", `
categories:
  - name: One
`)
	writeFile(t, dir, "broken.yaml", "name: [unterminated")
	writeFile(t, dir, "readme.txt", "not a template")

	files, err := LoadFromDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "Good", files[0].Template.Name)
	assert.Equal(t, "Nested", files[1].Template.Name)

	_, err = LoadFromDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	_, err := Parse([]byte("name: Empty\n"))
	assert.Error(t, err, "template without categories")

	req, err := Parse([]byte(`
name: Minimal
categories:
  - name: Only
    tasks:
      - title: Confirm
        type: text
`))
	require.NoError(t, err)
	assert.Equal(t, models.TaskText, req.Categories[0].Tasks[0].Type)
	assert.Zero(t, req.EstimatedDays)
}

func TestImportDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "press.yaml", `
name: Press
estimated_days: 21
categories:
  - name: Preparation
    tasks:
      - title: Oil delivered
        required: true
`)
	writeFile(t, dir, "invalid.yaml", `
name: Invalid
categories:
  - name: Preparation
    tasks:
      - title: Weird
        type: slider
`)

	mgr := checklist.NewManager(storagetest.NewTestRepository(t))

	res, err := ImportDir(ctx, dir, mgr)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, []string{filepath.Join(dir, "invalid.yaml")}, res.Failed)

	// Re-import replaces by name
	writeFile(t, dir, "press.yaml", `
name: Press
estimated_days: 30
categories:
  - name: Preparation
    tasks:
      - title: Oil delivered
        required: true
      - title: Crane booked
`)
	res, err = ImportDir(ctx, dir, mgr)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)

	list, err := mgr.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 30, list[0].EstimatedDays)
	assert.Equal(t, 2, list[0].Categories.TaskCount())
}
