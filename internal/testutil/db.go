// Package testutil provides test fixtures: content trees on an afero file
// system, a fully wired in-memory derivation stack, and temporary location
// databases.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/assetcache/internal/infrastructure/sqlite"
)

// NewTestDB opens a migrated location database in a temp directory. It is
// closed when the test ends.
func NewTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
