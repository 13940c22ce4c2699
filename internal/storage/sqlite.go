package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ashita-ai/xiaoban/internal/model"
)

// sqliteTimeLayout is fixed-width UTC so TEXT comparison orders by time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatSQLiteTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: bad timestamp %q: %w", s, err)
	}
	return t, nil
}

// SQLite is the embedded single-file backend.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database file at path. The
// special path ":memory:" opens a private in-memory database.
func NewSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("storage: create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// One writer at a time; a single connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: %s: %w", p, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	return &SQLite{db: db, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Dialect() string { return BackendSQLite }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// exec runs a write statement, retrying while another connection holds the
// write lock past busy_timeout.
func (s *SQLite) exec(ctx context.Context, query string, args ...any) error {
	return retryWrite(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *SQLite) Close(_ context.Context) {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("storage: close sqlite", "error", err)
	}
}

func (s *SQLite) RecordStatus(ctx context.Context, ev model.StatusEvent) (model.StatusEvent, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	err := s.exec(ctx,
		`INSERT INTO user_status (id, status_type, detail, recorded_at, source) VALUES (?, ?, ?, ?, ?)`,
		ev.ID.String(), string(ev.Type), ev.Detail, formatSQLiteTime(ev.RecordedAt), ev.Source,
	)
	if err != nil {
		return model.StatusEvent{}, fmt.Errorf("storage: record status: %w", err)
	}
	return ev, nil
}

const sqliteStatusColumns = `id, status_type, detail, recorded_at, source`

func (s *SQLite) StatusesBetween(ctx context.Context, from, to time.Time) ([]model.StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteStatusColumns+` FROM user_status
		 WHERE recorded_at >= ? AND recorded_at < ?
		 ORDER BY recorded_at ASC, rowid ASC`,
		formatSQLiteTime(from), formatSQLiteTime(to))
	if err != nil {
		return nil, fmt.Errorf("storage: query statuses between: %w", err)
	}
	return scanSQLiteStatuses(rows)
}

func (s *SQLite) RecentStatuses(ctx context.Context, limit int) ([]model.StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteStatusColumns+` FROM user_status
		 ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("storage: query recent statuses: %w", err)
	}
	return scanSQLiteStatuses(rows)
}

func (s *SQLite) StatusesByType(ctx context.Context, typ model.StatusType, limit int) ([]model.StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteStatusColumns+` FROM user_status
		 WHERE status_type = ?
		 ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, string(typ), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("storage: query statuses by type: %w", err)
	}
	return scanSQLiteStatuses(rows)
}

func scanSQLiteStatuses(rows *sql.Rows) ([]model.StatusEvent, error) {
	defer func() { _ = rows.Close() }()
	var out []model.StatusEvent
	for rows.Next() {
		var (
			ev       model.StatusEvent
			id, typ  string
			recorded string
		)
		if err := rows.Scan(&id, &typ, &ev.Detail, &recorded, &ev.Source); err != nil {
			return nil, fmt.Errorf("storage: scan status: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("storage: bad status id %q: %w", id, err)
		}
		ev.ID = parsed
		ev.Type = model.StatusType(typ)
		if ev.RecordedAt, err = parseSQLiteTime(recorded); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLite) TouchActivity(ctx context.Context, userID string, at time.Time) error {
	err := s.exec(ctx,
		`INSERT INTO user_activity (user_id, last_seen_at) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET last_seen_at = MAX(user_activity.last_seen_at, excluded.last_seen_at)`,
		userID, formatSQLiteTime(at))
	if err != nil {
		return fmt.Errorf("storage: touch activity: %w", err)
	}
	return nil
}

func (s *SQLite) LastActivity(ctx context.Context, userID string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seen_at FROM user_activity WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: last activity: %w", err)
	}
	return parseSQLiteTime(raw)
}

func (s *SQLite) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rule_id, fired_at FROM proactive_cooldowns`)
	if err != nil {
		return nil, fmt.Errorf("storage: load cooldowns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("storage: scan cooldown: %w", err)
		}
		at, err := parseSQLiteTime(raw)
		if err != nil {
			return nil, err
		}
		out[id] = at
	}
	return out, rows.Err()
}

func (s *SQLite) SaveCooldown(ctx context.Context, ruleID string, firedAt time.Time) error {
	err := s.exec(ctx,
		`INSERT INTO proactive_cooldowns (rule_id, fired_at) VALUES (?, ?)
		 ON CONFLICT (rule_id) DO UPDATE SET fired_at = excluded.fired_at`,
		ruleID, formatSQLiteTime(firedAt))
	if err != nil {
		return fmt.Errorf("storage: save cooldown: %w", err)
	}
	return nil
}

func (s *SQLite) AddSubscription(ctx context.Context, sub model.PushSubscription) error {
	err := s.exec(ctx,
		`INSERT INTO push_subscriptions (endpoint, p256dh, auth, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (endpoint) DO UPDATE
		 SET p256dh = excluded.p256dh, auth = excluded.auth, user_id = excluded.user_id`,
		sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth, sub.UserID, formatSQLiteTime(sub.CreatedAt))
	if err != nil {
		return fmt.Errorf("storage: add subscription: %w", err)
	}
	return nil
}

func (s *SQLite) RemoveSubscription(ctx context.Context, endpoint string) error {
	var res sql.Result
	err := retryWrite(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("storage: remove subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: remove subscription: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint, p256dh, auth, user_id, created_at
		 FROM push_subscriptions ORDER BY created_at ASC, endpoint ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		var created string
		if err := rows.Scan(&sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth, &sub.UserID, &created); err != nil {
			return nil, fmt.Errorf("storage: scan subscription: %w", err)
		}
		if sub.CreatedAt, err = parseSQLiteTime(created); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// RunMigrations applies the SQLite migration files.
func (s *SQLite) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	return runMigrations(ctx, s, migrationsFS, s.logger)
}

func (s *SQLite) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`)
	return err
}

func (s *SQLite) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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

func (s *SQLite) applyMigration(ctx context.Context, name, body string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		name, formatSQLiteTime(time.Now())); err != nil {
		return err
	}
	return tx.Commit()
}
