package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a migrated store on a throwaway SQLite database. The
// whole layer runs unmodified against it: probes, additive migrations and
// the counter statements are dialect-neutral.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s := NewForDialector(sqlite.Open(filepath.Join(t.TempDir(), "test.db")))
	s.retryDelay = time.Millisecond

	_, err := Migrate(s)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newBareStore opens an unmigrated store for migration tests.
func newBareStore(t *testing.T) *Store {
	t.Helper()

	s := NewForDialector(sqlite.Open(filepath.Join(t.TempDir(), "test.db")))
	s.retryDelay = time.Millisecond

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strptr(s string) *string       { return &s }
func intptr(i int) *int             { return &i }
func boolptr(b bool) *bool          { return &b }
func timeptr(t time.Time) *time.Time { return &t }
