package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetriable(t *testing.T) {
	assert.True(t, isRetriable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetriable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isRetriable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetriable(errors.New("plain")))
}

func TestWithRetryRetriesConflicts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnOtherErrors(t *testing.T) {
	calls := 0
	sentinel := errors.New("unique violation")
	err := WithRetry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestSQLiteTimeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 20, 10, 0, 0, 42, time.FixedZone("CST", 8*3600))
	raw := formatSQLiteTime(ts)
	assert.Equal(t, "2026-05-20T02:00:00.000000042Z", raw)

	back, err := parseSQLiteTime(raw)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))
}

type codeErr int

func (e codeErr) Error() string { return "sqlite error" }
func (e codeErr) Code() int     { return int(e) }

func TestIsRetriableSQLite(t *testing.T) {
	assert.True(t, isRetriable(codeErr(5)))
	assert.True(t, isRetriable(codeErr(6)))
	// SQLITE_BUSY_SNAPSHOT is an extended code on top of SQLITE_BUSY.
	assert.True(t, isRetriable(codeErr(517)))
	assert.False(t, isRetriable(codeErr(19)))
}

func TestRetryWriteRetriesBusy(t *testing.T) {
	calls := 0
	err := retryWrite(context.Background(), func() error {
		calls++
		if calls == 1 {
			return codeErr(5)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
