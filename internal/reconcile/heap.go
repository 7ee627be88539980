package reconcile

import (
	"container/heap"

	"conti/internal/core"
)

type party struct {
	index  int
	amount int64 // magnitude, always > 0
}

// partyHeap pops the largest amount first, then the lowest member index,
// which is the same order the linear scan selects in.
type partyHeap []party

func (h partyHeap) Len() int { return len(h) }
func (h partyHeap) Less(i, j int) bool {
	if h[i].amount != h[j].amount {
		return h[i].amount > h[j].amount
	}
	return h[i].index < h[j].index
}
func (h partyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *partyHeap) Push(x any)   { *h = append(*h, x.(party)) }
func (h *partyHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}

func planWithHeaps(members []core.Member, work []int64) []core.Settlement {
	debtors := &partyHeap{}
	creditors := &partyHeap{}
	for i, b := range work {
		switch {
		case b < 0:
			*debtors = append(*debtors, party{index: i, amount: -b})
		case b > 0:
			*creditors = append(*creditors, party{index: i, amount: b})
		}
	}
	heap.Init(debtors)
	heap.Init(creditors)

	var plan []core.Settlement
	for debtors.Len() > 0 && creditors.Len() > 0 {
		d := heap.Pop(debtors).(party)
		c := heap.Pop(creditors).(party)

		amount := min(d.amount, c.amount)
		plan = append(plan, core.Settlement{
			FromMemberID: members[d.index].ID,
			ToMemberID:   members[c.index].ID,
			Amount:       core.Money{Cents: amount},
		})

		if d.amount -= amount; d.amount > 0 {
			heap.Push(debtors, d)
		}
		if c.amount -= amount; c.amount > 0 {
			heap.Push(creditors, c)
		}
	}
	return plan
}
