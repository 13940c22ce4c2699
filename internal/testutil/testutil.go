// Package testutil holds fixtures shared by package tests: a migrated SQLite
// store per test and, behind the integration build tag, a PostgreSQL
// container.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/xiaoban/internal/storage"
	"github.com/ashita-ai/xiaoban/migrations"
)

// ExternalPostgresEnv names a DSN that, when set, replaces the container.
const ExternalPostgresEnv = "XIAOBAN_TEST_DATABASE_URL"

const (
	pgImage = "postgres:18-alpine"
	pgCreds = "xiaoban"
)

// Postgres is a database the integration tests may freely truncate.
type Postgres struct {
	DSN       string
	container testcontainers.Container
}

// StartPostgres returns the database named by XIAOBAN_TEST_DATABASE_URL, or
// starts a throwaway container when the variable is unset.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	if dsn := os.Getenv(ExternalPostgresEnv); dsn != "" {
		return &Postgres{DSN: dsn}, nil
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        pgImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgCreds,
				"POSTGRES_PASSWORD": pgCreds,
				"POSTGRES_DB":       pgCreds,
			},
			// Postgres logs readiness once for the init server, once for the real one.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start postgres: %w", err)
	}

	pg := &Postgres{container: c}
	host, err := c.Host(ctx)
	if err != nil {
		pg.Terminate()
		return nil, fmt.Errorf("testutil: container host: %w", err)
	}
	port, err := c.MappedPort(ctx, "5432")
	if err != nil {
		pg.Terminate()
		return nil, fmt.Errorf("testutil: container port: %w", err)
	}
	pg.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgCreds, pgCreds, host, port.Port(), pgCreds)
	return pg, nil
}

// MustStartPostgres is StartPostgres for TestMain: it exits the process on
// failure.
func MustStartPostgres() *Postgres {
	pg, err := StartPostgres(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return pg
}

// NewTestDB opens a store on the database and applies the Postgres migrations.
func (p *Postgres) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.PG, error) {
	db, err := storage.NewPostgres(ctx, p.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: open postgres: %w", err)
	}
	fsys, err := migrations.For(migrations.Postgres)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	if err := db.RunMigrations(ctx, fsys); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("testutil: migrate postgres: %w", err)
	}
	return db, nil
}

// Terminate removes the container. An external database is left alone.
func (p *Postgres) Terminate() {
	if p.container != nil {
		_ = p.container.Terminate(context.Background())
	}
}

// TestLogger only surfaces warnings so test output stays readable.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
