package main

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// testStateDB creates a temporary state database for tests.
func testStateDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openStateDB(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open state db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
