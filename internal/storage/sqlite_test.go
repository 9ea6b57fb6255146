package storage_test

import (
	"testing"

	"github.com/terra-clan/checklist-engine/internal/storage"
	"github.com/terra-clan/checklist-engine/internal/storage/storagetest"
)

func TestSQLiteRepository(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) storage.Repository {
		return storagetest.NewTestRepository(t)
	})
}
