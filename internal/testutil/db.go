// Package testutil provides test utilities for quest database setup.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/questdex/questdex/internal/infrastructure/sqlite"
)

// NewTestDB creates a file-backed quest database in a temp directory
// with all migrations applied. The database is closed when the test
// finishes.
func NewTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "questdex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
