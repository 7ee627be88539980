package reconcile

import (
	"math"

	"conti/internal/core"
)

const (
	maxSubscore = 50

	// Chore subscore for members without chores: neutral when nobody has
	// chore points, slightly penalised when others do.
	choreNeutral    = 25.0
	choreUnassigned = 20.0

	// Weight of one completed chore point in RawContribution, in cents.
	pointValue = 10
)

type contribution struct {
	paid, owed      int64
	total, complete int
	completedPoints int64
}

// ComputeFairnessScores scores each member from 0 to 100: up to 50 for paying
// their way and up to 50 for completing assigned chores. Output follows member
// order.
func ComputeFairnessScores(members []core.Member, expenses []core.Expense, chores []core.ChoreContribution) []core.FairnessScore {
	idx := memberIndex(members)
	acc := make([]contribution, len(members))

	for _, e := range expenses {
		if i, ok := idx[e.PayerID]; ok {
			acc[i].paid += e.Amount.Cents
		}
		for _, s := range e.Shares {
			if i, ok := idx[s.MemberID]; ok {
				acc[i].owed += s.Owed.Cents
			}
		}
	}

	groupHasPoints := false
	for _, c := range chores {
		i, ok := idx[c.MemberID]
		if !ok {
			continue
		}
		if c.Points > 0 {
			groupHasPoints = true
		}
		acc[i].total++
		if c.IsCompleted {
			acc[i].complete++
			acc[i].completedPoints = addSat(acc[i].completedPoints, int64(c.Points))
		}
	}

	out := make([]core.FairnessScore, len(members))
	for i, m := range members {
		a := acc[i]
		exp := int(math.Round(expenseSubscore(a.paid, a.owed)))
		chore := int(math.Round(choreSubscore(a.complete, a.total, groupHasPoints)))
		out[i] = core.FairnessScore{
			MemberID:        m.ID,
			Score:           min(max(exp+chore, 0), 2*maxSubscore),
			ExpenseSubscore: exp,
			ChoreSubscore:   chore,
			RawContribution: addSat(a.paid-a.owed, mulSat(a.completedPoints, pointValue)),
		}
	}
	return out
}

func expenseSubscore(paid, owed int64) float64 {
	if owed <= 0 {
		// Either contributed with nothing owed, or no data at all.
		return maxSubscore
	}
	return clamp(float64(paid)/float64(owed)*maxSubscore, 0, maxSubscore)
}

func choreSubscore(completed, total int, groupHasPoints bool) float64 {
	switch {
	case total > 0:
		return float64(completed) / float64(total) * maxSubscore
	case !groupHasPoints:
		return choreNeutral
	default:
		return choreUnassigned
	}
}

// addSat and mulSat clamp at the int64 bounds instead of wrapping.
func addSat(a, b int64) int64 {
	s := a + b
	switch {
	case a > 0 && b > 0 && s < 0:
		return math.MaxInt64
	case a < 0 && b < 0 && s >= 0:
		return math.MinInt64
	}
	return s
}

// mulSat expects non-negative operands.
func mulSat(a, b int64) int64 {
	if a != 0 && b > math.MaxInt64/a {
		return math.MaxInt64
	}
	return a * b
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
