package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

// migrationTarget is the dialect-specific half of the migration runner.
type migrationTarget interface {
	ensureMigrationsTable(ctx context.Context) error
	appliedMigrations(ctx context.Context) (map[string]bool, error)
	// applyMigration executes body and records name in one transaction.
	applyMigration(ctx context.Context, name, body string) error
}

// runMigrations executes unapplied SQL migration files from the provided
// filesystem in name order. Applied files are tracked in schema_migrations so
// each runs at most once. Forward-only.
func runMigrations(ctx context.Context, target migrationTarget, migrationsFS fs.FS, logger *slog.Logger) error {
	if err := target.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	applied, err := target.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("storage: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := entry.Name()
		if applied[name] {
			logger.Debug("migration already applied, skipping", "file", name)
			continue
		}

		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}

		logger.Info("running migration", "file", name)
		if err := target.applyMigration(ctx, name, string(content)); err != nil {
			return fmt.Errorf("storage: execute migration %s: %w", name, err)
		}
	}
	return nil
}
