// Package migrations embeds SQL migration files for use at runtime.
// Migrations are embedded so they work regardless of working directory.
// Each storage dialect has its own directory of numbered files.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialect names match storage.Store.Dialect.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// For returns the migration files for a dialect, rooted so that file names
// are bare (e.g. 001_initial.sql).
func For(dialect string) (fs.FS, error) {
	switch dialect {
	case Postgres, SQLite:
		return fs.Sub(files, dialect)
	default:
		return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
	}
}
