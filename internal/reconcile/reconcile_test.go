package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"conti/internal/core"
)

func TestReconcile(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	snap := core.Snapshot{
		GroupID:     "g1",
		Members:     members("U1", "U2", "U3"),
		Expenses:    []core.Expense{expense(12000, "U1", share("U1", 4000), share("U2", 4000), share("U3", 4000))},
		Fingerprint: 42,
	}

	report := Reconcile(snap, now)

	assert.Equal(t, "g1", report.GroupID)
	assert.Equal(t, core.Fingerprint(42), report.Fingerprint)
	assert.Equal(t, now, report.ComputedAt)
	assert.Equal(t, cents(12000), report.TotalSpent)
	assert.Len(t, report.Balances, 3)
	assert.Equal(t, []core.Settlement{settle("U2", "U1", 4000), settle("U3", "U1", 4000)}, report.Settlements)
	assert.Len(t, report.Scores, 3)
}

func TestReconcile_EmptySnapshot(t *testing.T) {
	report := Reconcile(core.Snapshot{GroupID: "empty"}, time.Time{})

	assert.Empty(t, report.Balances)
	assert.Empty(t, report.Settlements)
	assert.Empty(t, report.Scores)
	assert.Zero(t, report.TotalSpent.Cents)
}
