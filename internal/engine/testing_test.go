package engine

import (
	"database/sql"
	"testing"

	"github.com/agentmemory/memoryd/internal/store"
)

// setupTestDB opens a migrated sqlite database under a temp directory,
// closed automatically at test end.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := store.InitDBWithPath(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
