package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/checklist-engine/internal/models"
	"github.com/terra-clan/checklist-engine/internal/storage"
)

// repoFactory returns an empty repository that is closed when t ends
type repoFactory func(t *testing.T) storage.Repository

// runRepositoryContract runs the behavior every Repository implementation
// shares against repositories built by newRepo
func runRepositoryContract(t *testing.T, newRepo repoFactory) {
	cases := []struct {
		name string
		fn   func(*testing.T, repoFactory)
	}{
		{"TemplateRoundTrip", testTemplateRoundTrip},
		{"ChecklistSurvivesTemplateDelete", testChecklistSurvivesTemplateDelete},
		{"ChecklistTokenLookupAndConflict", testChecklistTokenLookupAndConflict},
		{"SaveChecklistProgressKeepsCompletedAt", testSaveChecklistProgressKeepsCompletedAt},
		{"UpdateChecklistStatusLeavesCompletedAlone", testUpdateChecklistStatusLeavesCompletedAlone},
		{"MarkChecklistOpenedOnlyFromSent", testMarkChecklistOpenedOnlyFromSent},
		{"ListChecklistsFiltersByEffectiveStatus", testListChecklistsFiltersByEffectiveStatus},
		{"AdminUsersCaseInsensitive", testAdminUsersCaseInsensitive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newRepo)
		})
	}
}

var baseTime = time.Date(2026, 3, 1, 9, 30, 0, 123456000, time.UTC)

func newTemplate(name string) *models.Template {
	return &models.Template{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   "Standard commissioning",
		EstimatedDays: 10,
		Categories: models.Categories{
			{ID: "cat-1", Name: "Electrical", Tasks: []models.Task{
				{ID: "wiring", Title: "Check wiring", Type: models.TaskCheckbox, Required: true},
				{ID: "notes", Title: "Notes", Type: models.TaskText},
			}},
		},
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func newChecklist(tmpl *models.Template, project string, created time.Time, due *time.Time) *models.Checklist {
	token, _ := models.GeneratePublicToken()
	return &models.Checklist{
		ID:            uuid.New().String(),
		TemplateID:    &tmpl.ID,
		ProjectName:   project,
		MachineType:   "N/A",
		SerialNumber:  "SN-1",
		CustomerName:  "Acme GmbH",
		CustomerEmail: "ops@acme.test",
		PublicToken:   token,
		Status:        models.StatusSent,
		DueDate:       due,
		Categories:    tmpl.Categories.Clone(),
		TaskStates:    models.TaskStates{},
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func testTemplateRoundTrip(t *testing.T, newRepo repoFactory) {
	repo := newRepo(t)
	ctx := context.Background()

	tmpl := newTemplate("Press line")
	require.NoError(t, repo.CreateTemplate(ctx, tmpl))

	got, err := repo.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tmpl, got)

	byName, err := repo.GetTemplateByName(ctx, "Press line")
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, byName.ID)

	tmpl.Name = "Press line v2"
	tmpl.Description = ""
	tmpl.UpdatedAt = baseTime.Add(time.Hour)
	require.NoError(t, repo.UpdateTemplate(ctx, tmpl))

	got, err = repo.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Press line v2", got.Name)
	assert.Empty(t, got.Description)

	list, err := repo.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.DeleteTemplate(ctx, tmpl.ID))
	_, err = repo.GetTemplate(ctx, tmpl.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteTemplate(ctx, tmpl.ID), storage.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateTemplate(ctx, tmpl), storage.ErrNotFound)
}

func testChecklistSurvivesTemplateDelete(t *testing.T, newRepo repoFactory) {
	repo := newRepo(t)
	ctx := context.Background()

	tmpl := newTemplate("Press line")
	require.NoError(t, repo.CreateTemplate(ctx, tmpl))

	c := newChecklist(tmpl, "Plant A", baseTime, nil)
	require.NoError(t, repo.CreateChecklist(ctx, c))

	require.NoError(t, repo.DeleteTemplate(ctx, tmpl.ID))

	got, err := repo.GetChecklist(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.TemplateID)
	assert.Equal(t, c.Categories, got.Categories)
}

func testChecklistTokenLookupAndConflict(t *testing.T, newRepo repoFactory) {
	repo := newRepo(t)
	ctx := context.Background()

	tmpl := newTemplate("Press line")
	require.NoError(t, repo.CreateTemplate(ctx, tmpl))

	due := baseTime.Add(48 * time.Hour)
	c := newChecklist(tmpl, "Plant A", baseTime, &due)
	phone := "+49 30 1234"
	c.CustomerPhone = &phone
	require.NoError(t, repo.CreateChecklist(ctx, c))

	got, err := repo.GetChecklistByToken(ctx, c.PublicToken)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = repo.GetChecklistByToken(ctx, "does-not-exist")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	dup := newChecklist(tmpl, "Plant B", baseTime, nil)
	dup.PublicToken = c.PublicToken
	assert.ErrorIs(t, repo.CreateChecklist(ctx, dup), storage.ErrConflict)
}

func testSaveChecklistProgressKeepsCompletedAt(t *testing.T, newRepo repoFactory) {
	repo := newRepo(t)
	ctx := context.Background()

	tmpl := newTemplate("Press line")
	require.NoError(t, repo.CreateTemplate(ctx, tmpl))
	c := newChecklist(tmpl, "Plant A", baseTime, nil)
	require.NoError(t, repo.CreateChecklist(ctx, c))

	done := baseTime.Add(time.Hour)
	require.NoError(t, repo.SaveChecklistProgress(ctx, c.ID, storage.ChecklistProgressUpdate{
		Status:      models.StatusCompleted,
		TaskStates:  models.TaskStates{"wiring": models.BoolValue(true)},
		CompletedAt: &done,
		UpdatedAt:   done,
	}))

	// Regression to in_progress leaves completed_at as it was
	later := done.Add(time.Hour)
	require.NoError(t, repo.SaveChecklistProgress(ctx, c.ID, storage.ChecklistProgressUpdate{
		Status:     models.StatusInProgress,
		TaskStates: models.TaskStates{"wiring": models.BoolValue(false)},
		UpdatedAt:  later,
	}))

	got, err := repo.GetChecklist(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
	assert.True(t, got.UpdatedAt.Equal(later))
	assert.True(t, got.TaskStates.Get("wiring").Equal(models.BoolValue(false)))

	assert.ErrorIs(t, repo.SaveChecklistProgress(ctx, "missing", storage.ChecklistProgressUpdate{UpdatedAt: later}), storage.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateChecklistStatus(ctx, "missing", models.StatusInProgress, later), storage.ErrNotFound)
}

func testUpdateChecklistStatusLeavesCompletedAlone(t *testing.T, newRepo repoFactory) {
	repo := newRepo(t)
	ctx := context.Background()

	tmpl := newTemplate("Press line")
	require.NoError(t, repo.CreateTemplate(ctx, tmpl))
	c := newChecklist(tmpl, "Plant A", baseTime, nil)
	c.Status = models.StatusCompleted
	require.NoError(t, repo.CreateChecklist(ctx, c))

	err := repo.UpdateChecklistStatus(ctx, c.ID, models.StatusOverdue, baseTime.Add(time.Hour))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := repo.GetChecklist(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func testMarkChecklistOpenedOnlyFromSent(t *testing.T, newRepo repoFactory) {
	repo := newRepo(t)
	ctx := context.Background()

	tmpl := newTemplate("Press line")
	require.NoError(t, repo.CreateTemplate(ctx, tmpl))
	c := newChecklist(tmpl, "Plant A", baseTime, nil)
	require.NoError(t, repo.CreateChecklist(ctx, c))
	swept := newChecklist(tmpl, "Plant B", baseTime, nil)
	swept.Status = models.StatusOverdue
	require.NoError(t, repo.CreateChecklist(ctx, swept))

	opened := baseTime.Add(time.Hour)
	ok, err := repo.MarkChecklistOpened(ctx, c.ID, opened)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkChecklistOpened(ctx, c.ID, opened.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetChecklist(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.True(t, got.UpdatedAt.Equal(opened))

	ok, err = repo.MarkChecklistOpened(ctx, swept.ID, opened)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err = repo.GetChecklist(ctx, swept.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, got.Status)

	ok, err = repo.MarkChecklistOpened(ctx, uuid.New().String(), opened)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testListChecklistsFiltersByEffectiveStatus(t *testing.T, newRepo repoFactory) {
	repo := newRepo(t)
	ctx := context.Background()
	now := baseTime.Add(10 * 24 * time.Hour)

	tmpl := newTemplate("Press line")
	require.NoError(t, repo.CreateTemplate(ctx, tmpl))

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	late := newChecklist(tmpl, "Late Plant", baseTime, &past)
	late.Status = models.StatusInProgress
	onTime := newChecklist(tmpl, "Harbor Crane", baseTime.Add(time.Minute), &future)
	onTime.Status = models.StatusInProgress
	done := newChecklist(tmpl, "Done 50%_Plant", baseTime.Add(2*time.Minute), &past)
	done.Status = models.StatusCompleted
	fresh := newChecklist(tmpl, "Fresh", baseTime.Add(3*time.Minute), nil)

	for _, c := range []*models.Checklist{late, onTime, done, fresh} {
		require.NoError(t, repo.CreateChecklist(ctx, c))
	}

	all, err := repo.ListChecklists(ctx, models.ChecklistFilters{}, now)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, fresh.ID, all[0].ID, "newest first")

	overdue, err := repo.ListChecklists(ctx, models.ChecklistFilters{Status: models.StatusOverdue}, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	inProgress, err := repo.ListChecklists(ctx, models.ChecklistFilters{Status: models.StatusInProgress}, now)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	assert.Equal(t, onTime.ID, inProgress[0].ID)

	search, err := repo.ListChecklists(ctx, models.ChecklistFilters{Search: "harbor"}, now)
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, onTime.ID, search[0].ID)

	// LIKE wildcards in the search term are literal
	search, err = repo.ListChecklists(ctx, models.ChecklistFilters{Search: "50%_"}, now)
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, done.ID, search[0].ID)

	page, err := repo.ListChecklists(ctx, models.ChecklistFilters{Limit: 2, Offset: 1}, now)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, done.ID, page[0].ID)

	total, err := repo.CountMatchingChecklists(ctx, models.ChecklistFilters{Limit: 2, Offset: 1}, now)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	total, err = repo.CountMatchingChecklists(ctx, models.ChecklistFilters{Status: models.StatusOverdue, Search: "plant"}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	stats, err := repo.CountChecklists(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, models.ChecklistStats{Total: 4, InProgress: 1, Completed: 1, Overdue: 1}, stats)

	candidates, err := repo.GetOverdueChecklists(ctx, now)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, late.ID, candidates[0].ID)
}

func testAdminUsersCaseInsensitive(t *testing.T, newRepo repoFactory) {
	repo := newRepo(t)
	ctx := context.Background()

	u := &models.AdminUser{
		ID:           uuid.New().String(),
		Username:     "Alice",
		DisplayName:  "Alice",
		PasswordHash: "hash",
		CreatedAt:    baseTime,
	}
	require.NoError(t, repo.CreateAdminUser(ctx, u))

	got, err := repo.GetAdminUserByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "alice", got.Username)

	got, err = repo.GetAdminUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", got.PasswordHash)

	dup := &models.AdminUser{ID: uuid.New().String(), Username: "alice", PasswordHash: "x", CreatedAt: baseTime}
	assert.ErrorIs(t, repo.CreateAdminUser(ctx, dup), storage.ErrConflict)

	_, err = repo.GetAdminUserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
