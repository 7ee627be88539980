package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"conti/internal/storage"
	"conti/internal/storage/storagetest"
)

// openTest connects to CONTI_TEST_DATABASE_URL and wipes the tables so each
// subtest starts empty.
func openTest(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("CONTI_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CONTI_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	truncate(t, s.pool)
	return s
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE chore_assignments, expense_shares, expenses, members, groups`)
	require.NoError(t, err)
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return openTest(t) })
}

func TestStoreWithStalledClock(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s := openTest(t)
		WithClock(storagetest.FixedClock())(s)
		return s
	})
}
