// Package storagetest provides an in-memory repository for tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/terra-clan/checklist-engine/internal/storage"
)

// NewTestRepository creates an in-memory SQLite repository with all
// migrations applied. It is closed when the test completes.
func NewTestRepository(t *testing.T) *storage.SQLiteRepository {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("creating test repository: %v", err)
	}

	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("closing test repository: %v", err)
		}
	})

	return repo
}
