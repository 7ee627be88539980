package services

import (
	"conti/internal/core"
)

const (
	SplitEqual = "equal"
	SplitExact = "exact"
)

// ExpenseInput is an expense as submitted by a client, before its shares
// are resolved.
type ExpenseInput struct {
	Description string
	Amount      core.Money
	PayerID     string
	// Split is SplitEqual (default) or SplitExact.
	Split string
	// Participants restricts an equal split; empty means every member.
	Participants []string
	// Shares are used as-is for an exact split.
	Shares []core.Share
}

// Resolve turns the input into an expense whose shares sum to the amount.
func (in ExpenseInput) Resolve(members []core.Member) (core.Expense, error) {
	e := core.Expense{
		Description: in.Description,
		Amount:      in.Amount,
		PayerID:     in.PayerID,
	}

	switch in.Split {
	case "", SplitEqual:
		ids := in.Participants
		if len(ids) == 0 {
			for _, m := range members {
				ids = append(ids, m.ID)
			}
		}
		if len(ids) == 0 {
			return core.Expense{}, ErrNoGroupMember
		}
		if err := in.Amount.Validate(); err != nil {
			return core.Expense{}, err
		}
		shares, err := core.SplitEqually(in.Amount, ids)
		if err != nil {
			return core.Expense{}, err
		}
		e.Shares = shares
	case SplitExact:
		e.Shares = append([]core.Share(nil), in.Shares...)
	default:
		return core.Expense{}, ErrUnknownSplit
	}

	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}
