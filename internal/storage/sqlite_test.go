package storage_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xiaoban/internal/storage"
	"github.com/ashita-ai/xiaoban/migrations"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func openSQLite(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()
	s, err := storage.Open(ctx, storage.Options{
		Backend:    storage.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "data", "conversations.db"),
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(ctx) })

	fsys, err := migrations.For(s.Dialect())
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations(ctx, fsys))
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, openSQLite)
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	s := openSQLite(t)
	fsys, err := migrations.For(s.Dialect())
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations(context.Background(), fsys))
}

func TestSQLiteDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "x.db")
	fsys, err := migrations.For(migrations.SQLite)
	require.NoError(t, err)

	s, err := storage.NewSQLite(ctx, path, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations(ctx, fsys))
	require.NoError(t, s.SaveCooldown(ctx, "r", mustTime(t, "2026-05-20T10:00:00+08:00")))
	s.Close(ctx)

	s, err = storage.NewSQLite(ctx, path, testLogger())
	require.NoError(t, err)
	defer s.Close(ctx)
	require.NoError(t, s.RunMigrations(ctx, fsys))

	loaded, err := s.LoadCooldowns(ctx)
	require.NoError(t, err)
	assert.Contains(t, loaded, "r")
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := storage.Open(context.Background(), storage.Options{Backend: "mongo"}, testLogger())
	require.Error(t, err)
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	_, err := storage.Open(context.Background(), storage.Options{Backend: storage.BackendPostgres}, testLogger())
	require.Error(t, err)
}
