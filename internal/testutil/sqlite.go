package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ashita-ai/xiaoban/internal/storage"
	"github.com/ashita-ai/xiaoban/migrations"
)

// OpenSQLite opens a migrated SQLite store in a per-test temp directory and
// closes it when the test ends. Unit tests across packages use it instead
// of hand-rolled fakes when they need real query semantics.
func OpenSQLite(t testing.TB) storage.Store {
	t.Helper()
	ctx := context.Background()
	s, err := storage.Open(ctx, storage.Options{
		Backend:    storage.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "xiaoban.db"),
	}, TestLogger())
	if err != nil {
		t.Fatalf("testutil: open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close(ctx) })

	fsys, err := migrations.For(s.Dialect())
	if err != nil {
		t.Fatalf("testutil: migrations: %v", err)
	}
	if err := s.RunMigrations(ctx, fsys); err != nil {
		t.Fatalf("testutil: migrate: %v", err)
	}
	return s
}
