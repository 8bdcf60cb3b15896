// Package testutil provides test fixtures for the record store: migrated
// SQLite databases and a builder for the business records that verification
// rules read.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/infrastructure/sqlite"
	"github.com/zjrosen/playbook/internal/recordstore"
)

// NewTestDB opens a migrated SQLite database in a temporary directory.
// It is closed when the test ends.
func NewTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Backends runs fn once against the in-memory store and once against SQLite.
func Backends(t *testing.T, fn func(t *testing.T, store recordstore.Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, recordstore.NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, NewTestDB(t).RecordStore())
	})
}
