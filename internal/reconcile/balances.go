package reconcile

import "conti/internal/core"

// memberIndex maps member ids to their first position in members.
func memberIndex(members []core.Member) map[string]int {
	idx := make(map[string]int, len(members))
	for i, m := range members {
		if _, ok := idx[m.ID]; !ok {
			idx[m.ID] = i
		}
	}
	return idx
}

// ComputeNetBalances credits each payer with the full expense amount and
// debits every share from its member. Share paid flags are not consulted.
// The result has one entry per member, in input order.
func ComputeNetBalances(members []core.Member, expenses []core.Expense) []core.NetBalance {
	idx := memberIndex(members)
	bal := make([]int64, len(members))

	for _, e := range expenses {
		if i, ok := idx[e.PayerID]; ok {
			bal[i] += e.Amount.Cents
		}
		for _, s := range e.Shares {
			if i, ok := idx[s.MemberID]; ok {
				bal[i] -= s.Owed.Cents
			}
		}
	}

	out := make([]core.NetBalance, len(members))
	for i, m := range members {
		out[i] = core.NetBalance{MemberID: m.ID, Balance: core.Money{Cents: bal[i]}}
	}
	return out
}
