//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xiaoban/internal/storage"
	"github.com/ashita-ai/xiaoban/internal/testutil"
)

// testPG is shared by every Postgres test in this package.
var testPG *storage.PG

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()
	db, err := tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	testPG = db

	code := m.Run()

	testPG.Close(ctx)
	tc.Terminate()
	os.Exit(code)
}

func openPostgres(t *testing.T) storage.Store {
	t.Helper()
	_, err := testPG.Pool().Exec(context.Background(),
		`TRUNCATE user_status, user_activity, proactive_cooldowns, push_subscriptions`)
	require.NoError(t, err)
	return testPG
}

func TestPostgresStore(t *testing.T) {
	runStoreSuite(t, openPostgres)
}
