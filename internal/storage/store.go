// Package storage persists user status events, activity, proactive rule
// cooldowns, and Web Push subscriptions.
//
// Two backends implement Store: an embedded SQLite file (the default for a
// single-user install) and PostgreSQL via pgxpool. Both are migrated from
// the per-dialect SQL files in the migrations package.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/ashita-ai/xiaoban/internal/model"
)

// Store is the persistence surface used by the server and the proactive engine.
type Store interface {
	// RecordStatus stores ev. A zero ID is replaced with a new UUID.
	RecordStatus(ctx context.Context, ev model.StatusEvent) (model.StatusEvent, error)
	// StatusesBetween returns events with from <= recorded_at < to, oldest first.
	StatusesBetween(ctx context.Context, from, to time.Time) ([]model.StatusEvent, error)
	// RecentStatuses returns up to limit events, newest first.
	RecentStatuses(ctx context.Context, limit int) ([]model.StatusEvent, error)
	// StatusesByType returns up to limit events of one type, newest first.
	StatusesByType(ctx context.Context, typ model.StatusType, limit int) ([]model.StatusEvent, error)

	TouchActivity(ctx context.Context, userID string, at time.Time) error
	// LastActivity returns ErrNotFound if the user was never seen.
	LastActivity(ctx context.Context, userID string) (time.Time, error)

	LoadCooldowns(ctx context.Context) (map[string]time.Time, error)
	SaveCooldown(ctx context.Context, ruleID string, firedAt time.Time) error

	// AddSubscription registers or refreshes an endpoint; re-adding replaces its keys.
	AddSubscription(ctx context.Context, sub model.PushSubscription) error
	// RemoveSubscription returns ErrNotFound if the endpoint is not registered.
	RemoveSubscription(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)

	RunMigrations(ctx context.Context, migrationsFS fs.FS) error
	Dialect() string
	Ping(ctx context.Context) error
	Close(ctx context.Context)
}

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	SQLitePath  string
	PostgresDSN string
}

// Open connects to the configured backend.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		return NewSQLite(ctx, opts.SQLitePath, logger)
	case BackendPostgres:
		return NewPostgres(ctx, opts.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 10
	case limit > 500:
		return 500
	default:
		return limit
	}
}
