package reconcile

import "conti/internal/core"

// HeapThreshold is the member count above which PlanSettlements switches from
// the linear scan to the two-heap planner. Both produce the same plan.
const HeapThreshold = 64

// PlanSettlements repeatedly matches the largest debtor with the largest
// creditor and settles the smaller of the two amounts, until one side is
// exhausted. Ties go to the member listed first. Balances for ids that are not
// in members are ignored; members without a balance count as zero.
//
// With conserving balances the plan has at most len(members)-1 entries and
// its total equals the sum of positive balances.
func PlanSettlements(members []core.Member, balances []core.NetBalance) []core.Settlement {
	work := workingBalances(members, balances)
	if len(work) > HeapThreshold {
		return planWithHeaps(members, work)
	}
	return planLinear(members, work)
}

func workingBalances(members []core.Member, balances []core.NetBalance) []int64 {
	idx := memberIndex(members)
	work := make([]int64, len(members))
	for _, b := range balances {
		if i, ok := idx[b.MemberID]; ok {
			work[i] += b.Balance.Cents
		}
	}
	return work
}

func planLinear(members []core.Member, work []int64) []core.Settlement {
	var plan []core.Settlement
	for {
		debtor, creditor := -1, -1
		var maxDebt, maxCredit int64
		for i, b := range work {
			switch {
			case b < 0 && -b > maxDebt:
				debtor, maxDebt = i, -b
			case b > 0 && b > maxCredit:
				creditor, maxCredit = i, b
			}
		}
		if debtor < 0 || creditor < 0 {
			return plan
		}

		amount := min(maxDebt, maxCredit)
		plan = append(plan, core.Settlement{
			FromMemberID: members[debtor].ID,
			ToMemberID:   members[creditor].ID,
			Amount:       core.Money{Cents: amount},
		})
		work[debtor] += amount
		work[creditor] -= amount
	}
}
