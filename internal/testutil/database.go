// Package testutil provides test helpers: an in-memory database and a
// deterministic transaction generator.
package testutil

import (
	"context"
	"testing"

	"github.com/thetally/categorize/internal/storage"
)

// SetupTestDB creates a migrated in-memory SQLite database and registers its
// cleanup with the test.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}
