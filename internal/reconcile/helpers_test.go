package reconcile

import (
	"fmt"
	"math/rand"

	"conti/internal/core"
)

func members(ids ...string) []core.Member {
	out := make([]core.Member, len(ids))
	for i, id := range ids {
		out[i] = core.Member{ID: id, DisplayName: "Member " + id}
	}
	return out
}

func cents(c int64) core.Money { return core.Money{Cents: c} }

func expense(amount int64, payer string, shares ...core.Share) core.Expense {
	return core.Expense{
		ID:          fmt.Sprintf("e-%s-%d", payer, amount),
		Description: "test",
		Amount:      cents(amount),
		PayerID:     payer,
		Shares:      shares,
	}
}

func share(member string, owed int64) core.Share {
	return core.Share{MemberID: member, Owed: cents(owed)}
}

func balanceMap(bs []core.NetBalance) map[string]int64 {
	out := make(map[string]int64, len(bs))
	for _, b := range bs {
		out[b.MemberID] = b.Balance.Cents
	}
	return out
}

// randomGroup builds a group whose expenses are always split exactly, so that
// balances conserve money.
func randomGroup(r *rand.Rand, n, expenses int) ([]core.Member, []core.Expense) {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%03d", i)
	}
	ms := members(ids...)

	es := make([]core.Expense, 0, expenses)
	for range expenses {
		payer := ids[r.Intn(n)]
		k := 1 + r.Intn(n)
		perm := r.Perm(n)[:k]
		participants := make([]string, k)
		for i, p := range perm {
			participants[i] = ids[p]
		}
		amount := core.Money{Cents: int64(r.Intn(50000))}
		shares, _ := core.SplitEqually(amount, participants)
		es = append(es, core.Expense{Amount: amount, PayerID: payer, Shares: shares})
	}
	return ms, es
}
