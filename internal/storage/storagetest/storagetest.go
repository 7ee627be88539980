// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/storage"
)

// Run exercises a fresh store returned by open for each subtest.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("create and get group", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		g, err := s.CreateGroup(ctx, "Flat 3B")
		require.NoError(t, err)
		assert.NotEmpty(t, g.ID)
		assert.Equal(t, "Flat 3B", g.Name)
		assert.NotZero(t, g.Fingerprint)

		got, err := s.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.ID, got.ID)
		assert.Equal(t, g.Fingerprint, got.Fingerprint)

		_, err = s.GetGroup(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrGroupNotFound)

		_, err = s.CreateGroup(ctx, "   ")
		assert.ErrorIs(t, err, core.ErrEmptyGroupName)
	})

	t.Run("snapshot preserves insertion order", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		g, alice, bob, carol := seed(t, s)

		e, err := s.AddExpense(ctx, g.ID, core.Expense{
			Description: "Groceries",
			Amount:      core.Money{Cents: 9000},
			PayerID:     alice.ID,
			Shares: []core.Share{
				{MemberID: alice.ID, Owed: core.Money{Cents: 3000}},
				{MemberID: bob.ID, Owed: core.Money{Cents: 3000}},
				{MemberID: carol.ID, Owed: core.Money{Cents: 3000}},
			},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)

		_, err = s.AddExpense(ctx, g.ID, core.Expense{
			Description: "Internet",
			Amount:      core.Money{Cents: 3001},
			PayerID:     bob.ID,
			Shares: []core.Share{
				{MemberID: bob.ID, Owed: core.Money{Cents: 1501}},
				{MemberID: carol.ID, Owed: core.Money{Cents: 1500}},
			},
		})
		require.NoError(t, err)

		c, err := s.AddChore(ctx, g.ID, core.ChoreContribution{MemberID: carol.ID, Title: "Bins", Points: 3})
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)

		snap, err := s.LoadSnapshot(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.ID, snap.GroupID)
		require.Len(t, snap.Members, 3)
		assert.Equal(t, []string{alice.ID, bob.ID, carol.ID}, memberIDs(snap.Members))
		assert.Equal(t, "Alice", snap.Members[0].DisplayName)

		require.Len(t, snap.Expenses, 2)
		assert.Equal(t, "Groceries", snap.Expenses[0].Description)
		assert.Equal(t, int64(9000), snap.Expenses[0].Amount.Cents)
		assert.Equal(t, alice.ID, snap.Expenses[0].PayerID)
		require.Len(t, snap.Expenses[0].Shares, 3)
		assert.Equal(t, alice.ID, snap.Expenses[0].Shares[0].MemberID)
		assert.Equal(t, int64(1501), snap.Expenses[1].Shares[0].Owed.Cents)

		require.Len(t, snap.Chores, 1)
		assert.Equal(t, core.ChoreContribution{ID: c.ID, MemberID: carol.ID, Title: "Bins", Points: 3}, snap.Chores[0])
	})

	t.Run("every write advances the fingerprint", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		g, alice, bob, _ := seed(t, s)

		last := fingerprint(t, s, g.ID)
		advanced := func(step string) {
			t.Helper()
			fp := fingerprint(t, s, g.ID)
			assert.Greater(t, int64(fp), int64(last), step)
			last = fp
		}

		e, err := s.AddExpense(ctx, g.ID, core.Expense{
			Description: "Pizza",
			Amount:      core.Money{Cents: 2000},
			PayerID:     alice.ID,
			Shares: []core.Share{
				{MemberID: alice.ID, Owed: core.Money{Cents: 1000}},
				{MemberID: bob.ID, Owed: core.Money{Cents: 1000}},
			},
		})
		require.NoError(t, err)
		advanced("add expense")

		require.NoError(t, s.MarkSharePaid(ctx, g.ID, e.ID, bob.ID))
		advanced("mark share paid")

		c, err := s.AddChore(ctx, g.ID, core.ChoreContribution{MemberID: bob.ID, Title: "Dishes", Points: 2})
		require.NoError(t, err)
		advanced("add chore")

		require.NoError(t, s.CompleteChore(ctx, g.ID, c.ID))
		advanced("complete chore")

		require.NoError(t, s.DeleteExpense(ctx, g.ID, e.ID))
		advanced("delete expense")

		_, err = s.AddMember(ctx, g.ID, "Dave")
		require.NoError(t, err)
		advanced("add member")

		got, err := s.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, last, got.Fingerprint)
	})

	t.Run("paid flags and completion are persisted", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		g, alice, bob, _ := seed(t, s)

		e, err := s.AddExpense(ctx, g.ID, core.Expense{
			Description: "Taxi",
			Amount:      core.Money{Cents: 1000},
			PayerID:     alice.ID,
			Shares:      []core.Share{{MemberID: bob.ID, Owed: core.Money{Cents: 1000}}},
		})
		require.NoError(t, err)
		require.NoError(t, s.MarkSharePaid(ctx, g.ID, e.ID, bob.ID))

		c, err := s.AddChore(ctx, g.ID, core.ChoreContribution{MemberID: alice.ID, Title: "Vacuum", Points: 4})
		require.NoError(t, err)
		require.NoError(t, s.CompleteChore(ctx, g.ID, c.ID))

		snap, err := s.LoadSnapshot(ctx, g.ID)
		require.NoError(t, err)
		require.Len(t, snap.Expenses, 1)
		assert.True(t, snap.Expenses[0].Shares[0].IsPaid)
		require.Len(t, snap.Chores, 1)
		assert.True(t, snap.Chores[0].IsCompleted)
	})

	t.Run("deleted expenses leave the snapshot", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		g, alice, bob, _ := seed(t, s)

		e, err := s.AddExpense(ctx, g.ID, core.Expense{
			Description: "Cinema",
			Amount:      core.Money{Cents: 1600},
			PayerID:     alice.ID,
			Shares:      []core.Share{{MemberID: bob.ID, Owed: core.Money{Cents: 1600}}},
		})
		require.NoError(t, err)
		require.NoError(t, s.DeleteExpense(ctx, g.ID, e.ID))

		snap, err := s.LoadSnapshot(ctx, g.ID)
		require.NoError(t, err)
		assert.Empty(t, snap.Expenses)

		assert.ErrorIs(t, s.DeleteExpense(ctx, g.ID, e.ID), storage.ErrExpenseNotFound)
		assert.ErrorIs(t, s.MarkSharePaid(ctx, g.ID, e.ID, bob.ID), storage.ErrExpenseNotFound)
	})

	t.Run("not found errors", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		g, alice, bob, _ := seed(t, s)

		_, err := s.LoadSnapshot(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrGroupNotFound)

		_, err = s.AddMember(ctx, "missing", "Eve")
		assert.ErrorIs(t, err, storage.ErrGroupNotFound)

		_, err = s.AddExpense(ctx, g.ID, core.Expense{
			Description: "Ghost",
			Amount:      core.Money{Cents: 100},
			PayerID:     "not-a-member",
			Shares:      []core.Share{{MemberID: alice.ID, Owed: core.Money{Cents: 100}}},
		})
		assert.ErrorIs(t, err, storage.ErrMemberNotFound)

		_, err = s.AddExpense(ctx, g.ID, core.Expense{
			Description: "Ghost share",
			Amount:      core.Money{Cents: 100},
			PayerID:     alice.ID,
			Shares:      []core.Share{{MemberID: "not-a-member", Owed: core.Money{Cents: 100}}},
		})
		assert.ErrorIs(t, err, storage.ErrMemberNotFound)

		e, err := s.AddExpense(ctx, g.ID, core.Expense{
			Description: "Real",
			Amount:      core.Money{Cents: 100},
			PayerID:     alice.ID,
			Shares:      []core.Share{{MemberID: alice.ID, Owed: core.Money{Cents: 100}}},
		})
		require.NoError(t, err)
		assert.ErrorIs(t, s.MarkSharePaid(ctx, g.ID, e.ID, bob.ID), storage.ErrShareNotFound)

		_, err = s.AddChore(ctx, g.ID, core.ChoreContribution{MemberID: "not-a-member", Title: "Mop", Points: 1})
		assert.ErrorIs(t, err, storage.ErrMemberNotFound)
		assert.ErrorIs(t, s.CompleteChore(ctx, g.ID, "missing"), storage.ErrChoreNotFound)
	})

	t.Run("invalid writes are rejected", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		g, alice, bob, _ := seed(t, s)

		_, err := s.AddMember(ctx, g.ID, "")
		assert.ErrorIs(t, err, core.ErrEmptyDisplayName)

		_, err = s.AddExpense(ctx, g.ID, core.Expense{
			Description: "Mismatch",
			Amount:      core.Money{Cents: 1000},
			PayerID:     alice.ID,
			Shares:      []core.Share{{MemberID: bob.ID, Owed: core.Money{Cents: 999}}},
		})
		assert.ErrorIs(t, err, core.ErrSharesMismatch)

		_, err = s.AddChore(ctx, g.ID, core.ChoreContribution{MemberID: alice.ID, Title: "Mop", Points: -1})
		assert.ErrorIs(t, err, core.ErrNegativePoints)

		_, err = s.AddChore(ctx, g.ID, core.ChoreContribution{MemberID: alice.ID, Title: "Mop", Points: core.MaxChorePoints + 1})
		assert.ErrorIs(t, err, core.ErrTooManyPoints)
	})

	t.Run("groups are isolated", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		g1, alice, _, _ := seed(t, s)
		g2, err := s.CreateGroup(ctx, "Other")
		require.NoError(t, err)

		_, err = s.AddChore(ctx, g2.ID, core.ChoreContribution{MemberID: alice.ID, Title: "Mop", Points: 1})
		assert.ErrorIs(t, err, storage.ErrMemberNotFound)

		c, err := s.AddChore(ctx, g1.ID, core.ChoreContribution{MemberID: alice.ID, Title: "Mop", Points: 1})
		require.NoError(t, err)
		assert.ErrorIs(t, s.CompleteChore(ctx, g2.ID, c.ID), storage.ErrChoreNotFound)

		snap, err := s.LoadSnapshot(ctx, g2.ID)
		require.NoError(t, err)
		assert.Empty(t, snap.Members)
		assert.Empty(t, snap.Chores)
	})
}

// FixedClock returns a clock that never advances, to prove stamps stay
// strictly increasing without help from the wall clock.
func FixedClock() func() time.Time {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func seed(t *testing.T, s storage.Store) (core.Group, core.Member, core.Member, core.Member) {
	t.Helper()
	ctx := context.Background()
	g, err := s.CreateGroup(ctx, "Household")
	require.NoError(t, err)
	var ms [3]core.Member
	for i, name := range []string{"Alice", "Bob", "Carol"} {
		ms[i], err = s.AddMember(ctx, g.ID, name)
		require.NoError(t, err)
	}
	return g, ms[0], ms[1], ms[2]
}

func fingerprint(t *testing.T, s storage.Store, groupID string) core.Fingerprint {
	t.Helper()
	snap, err := s.LoadSnapshot(context.Background(), groupID)
	require.NoError(t, err)
	return snap.Fingerprint
}

func memberIDs(ms []core.Member) []string {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	return ids
}
