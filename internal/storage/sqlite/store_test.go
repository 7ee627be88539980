package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/storage"
	"conti/internal/storage/storagetest"
)

func openTemp(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "conti.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return openTemp(t) })
}

func TestStoreWithStalledClock(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return openTemp(t, WithClock(storagetest.FixedClock())) })
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "conti.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	g, err := s.CreateGroup(ctx, "Home")
	require.NoError(t, err)
	m, err := s.AddMember(ctx, g.ID, "Ada")
	require.NoError(t, err)
	_, err = s.AddExpense(ctx, g.ID, core.Expense{
		Description: "Rent",
		Amount:      core.Money{Cents: 50000},
		PayerID:     m.ID,
		Shares:      []core.Share{{MemberID: m.ID, Owed: core.Money{Cents: 50000}}},
	})
	require.NoError(t, err)
	before, err := s.LoadSnapshot(ctx, g.ID)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Migrations must be idempotent on reopen.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	after, err := s2.LoadSnapshot(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	require.NoError(t, s2.Ping(ctx))
}

func TestRejectedWriteKeepsFingerprint(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	g, err := s.CreateGroup(ctx, "Home")
	require.NoError(t, err)
	before, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, s.CompleteChore(ctx, g.ID, "missing"), storage.ErrChoreNotFound)

	after, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Fingerprint, after.Fingerprint)
}
