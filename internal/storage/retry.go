package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Write retry budget shared by both backends.
const (
	writeRetries    = 3
	writeRetryDelay = 20 * time.Millisecond
)

// SQLite primary result codes; extended codes keep these in the low byte.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// sqliteCoder matches *sqlite.Error from modernc.org/sqlite.
type sqliteCoder interface {
	Code() int
}

// isRetriable reports whether err is a transient write conflict: a Postgres
// serialization failure or deadlock, or a SQLite busy/locked database that
// outlasted busy_timeout.
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var liteErr sqliteCoder
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
	}
	return false
}

// WithRetry executes fn, retrying up to maxRetries times on transient write
// conflicts. Retries use jittered exponential backoff starting at baseDelay.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
	return err
}

// retryWrite runs a single write statement under the shared retry budget.
func retryWrite(ctx context.Context, fn func() error) error {
	return WithRetry(ctx, writeRetries, writeRetryDelay, fn)
}
