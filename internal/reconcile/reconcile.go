package reconcile

import (
	"time"

	"conti/internal/core"
)

// Reconcile runs the full pipeline over one snapshot. now stamps the report
// and has no influence on the figures.
func Reconcile(s core.Snapshot, now time.Time) core.Report {
	balances := ComputeNetBalances(s.Members, s.Expenses)

	var spent int64
	for _, e := range s.Expenses {
		spent += e.Amount.Cents
	}

	return core.Report{
		GroupID:     s.GroupID,
		Fingerprint: s.Fingerprint,
		Balances:    balances,
		Settlements: PlanSettlements(s.Members, balances),
		Scores:      ComputeFairnessScores(s.Members, s.Expenses, s.Chores),
		TotalSpent:  core.Money{Cents: spent},
		ComputedAt:  now,
	}
}
