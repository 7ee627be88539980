package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/storage"
	"conti/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return New() })
}

func TestStoreWithStalledClock(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return NewWithClock(storagetest.FixedClock()) })
}

func TestSnapshotIsDetached(t *testing.T) {
	s := New()
	ctx := context.Background()
	g, err := s.CreateGroup(ctx, "Home")
	require.NoError(t, err)
	a, err := s.AddMember(ctx, g.ID, "A")
	require.NoError(t, err)
	e, err := s.AddExpense(ctx, g.ID, core.Expense{
		Description: "Rent",
		Amount:      core.Money{Cents: 100},
		PayerID:     a.ID,
		Shares:      []core.Share{{MemberID: a.ID, Owed: core.Money{Cents: 100}}},
	})
	require.NoError(t, err)

	snap, err := s.LoadSnapshot(ctx, g.ID)
	require.NoError(t, err)
	snap.Expenses[0].Shares[0].Owed.Cents = 1

	require.NoError(t, s.MarkSharePaid(ctx, g.ID, e.ID, a.ID))
	assert.False(t, snap.Expenses[0].Shares[0].IsPaid)

	again, err := s.LoadSnapshot(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), again.Expenses[0].Shares[0].Owed.Cents)
}
