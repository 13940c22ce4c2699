package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashita-ai/xiaoban/internal/model"
)

// PG is the PostgreSQL backend.
type PG struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*PG)(nil)

// NewPostgres creates a connection pool and verifies it with a ping.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PG, error) {
	if dsn == "" {
		return nil, errors.New("storage: postgres DSN is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}
	return &PG{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool.
func (db *PG) Pool() *pgxpool.Pool { return db.pool }

func (db *PG) Dialect() string { return BackendPostgres }

// Ping checks connectivity to the database.
func (db *PG) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }

// Close shuts down the connection pool.
func (db *PG) Close(_ context.Context) { db.pool.Close() }

func (db *PG) RecordStatus(ctx context.Context, ev model.StatusEvent) (model.StatusEvent, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_status (id, status_type, detail, recorded_at, source)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, string(ev.Type), ev.Detail, ev.RecordedAt, ev.Source,
	)
	if err != nil {
		return model.StatusEvent{}, fmt.Errorf("storage: record status: %w", err)
	}
	return ev, nil
}

const pgStatusColumns = `id, status_type, detail, recorded_at, source`

func (db *PG) StatusesBetween(ctx context.Context, from, to time.Time) ([]model.StatusEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+pgStatusColumns+` FROM user_status
		 WHERE recorded_at >= $1 AND recorded_at < $2
		 ORDER BY recorded_at ASC, id ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("storage: query statuses between: %w", err)
	}
	return scanPGStatuses(rows)
}

func (db *PG) RecentStatuses(ctx context.Context, limit int) ([]model.StatusEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+pgStatusColumns+` FROM user_status
		 ORDER BY recorded_at DESC, id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("storage: query recent statuses: %w", err)
	}
	return scanPGStatuses(rows)
}

func (db *PG) StatusesByType(ctx context.Context, typ model.StatusType, limit int) ([]model.StatusEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+pgStatusColumns+` FROM user_status
		 WHERE status_type = $1
		 ORDER BY recorded_at DESC, id DESC LIMIT $2`, string(typ), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("storage: query statuses by type: %w", err)
	}
	return scanPGStatuses(rows)
}

func scanPGStatuses(rows pgx.Rows) ([]model.StatusEvent, error) {
	defer rows.Close()
	var out []model.StatusEvent
	for rows.Next() {
		var ev model.StatusEvent
		var typ string
		if err := rows.Scan(&ev.ID, &typ, &ev.Detail, &ev.RecordedAt, &ev.Source); err != nil {
			return nil, fmt.Errorf("storage: scan status: %w", err)
		}
		ev.Type = model.StatusType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (db *PG) TouchActivity(ctx context.Context, userID string, at time.Time) error {
	return retryWrite(ctx, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO user_activity (user_id, last_seen_at) VALUES ($1, $2)
			 ON CONFLICT (user_id) DO UPDATE
			 SET last_seen_at = GREATEST(user_activity.last_seen_at, EXCLUDED.last_seen_at)`,
			userID, at)
		if err != nil {
			return fmt.Errorf("storage: touch activity: %w", err)
		}
		return nil
	})
}

func (db *PG) LastActivity(ctx context.Context, userID string) (time.Time, error) {
	var at time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT last_seen_at FROM user_activity WHERE user_id = $1`, userID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: last activity: %w", err)
	}
	return at, nil
}

func (db *PG) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	rows, err := db.pool.Query(ctx, `SELECT rule_id, fired_at FROM proactive_cooldowns`)
	if err != nil {
		return nil, fmt.Errorf("storage: load cooldowns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("storage: scan cooldown: %w", err)
		}
		out[id] = at
	}
	return out, rows.Err()
}

func (db *PG) SaveCooldown(ctx context.Context, ruleID string, firedAt time.Time) error {
	return retryWrite(ctx, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO proactive_cooldowns (rule_id, fired_at) VALUES ($1, $2)
			 ON CONFLICT (rule_id) DO UPDATE SET fired_at = EXCLUDED.fired_at`,
			ruleID, firedAt)
		if err != nil {
			return fmt.Errorf("storage: save cooldown: %w", err)
		}
		return nil
	})
}

func (db *PG) AddSubscription(ctx context.Context, sub model.PushSubscription) error {
	return retryWrite(ctx, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO push_subscriptions (endpoint, p256dh, auth, user_id, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (endpoint) DO UPDATE
			 SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, user_id = EXCLUDED.user_id`,
			sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth, sub.UserID, sub.CreatedAt)
		if err != nil {
			return fmt.Errorf("storage: add subscription: %w", err)
		}
		return nil
	})
}

func (db *PG) RemoveSubscription(ctx context.Context, endpoint string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("storage: remove subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PG) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT endpoint, p256dh, auth, user_id, created_at
		 FROM push_subscriptions ORDER BY created_at ASC, endpoint ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []model.PushSubscription
	for rows.Next() {
		var s model.PushSubscription
		if err := rows.Scan(&s.Endpoint, &s.Keys.P256dh, &s.Keys.Auth, &s.UserID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RunMigrations applies the Postgres migration files.
func (db *PG) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	return runMigrations(ctx, db, migrationsFS, db.logger)
}

func (db *PG) ensureMigrationsTable(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func (db *PG) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := db.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (db *PG) applyMigration(ctx context.Context, name, body string) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, body); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name)
		return err
	})
}
