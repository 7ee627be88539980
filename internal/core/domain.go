package core

import (
	"errors"
	"strings"
)

type (
	Money struct {
		Cents int64
	}

	// Member is a participant of a group. ID is the aggregation key.
	Member struct {
		ID          string
		DisplayName string
	}

	// Share is the part of an expense owed by one member.
	// IsPaid is metadata only: balance computation never reads it.
	Share struct {
		MemberID string
		Owed     Money
		IsPaid   bool
	}

	Expense struct {
		ID          string
		Description string
		Amount      Money // fronted by PayerID
		PayerID     string
		Shares      []Share
	}

	ChoreContribution struct {
		ID          string
		MemberID    string
		Title       string
		Points      int
		IsCompleted bool
	}

	// NetBalance is positive when the member is owed money.
	NetBalance struct {
		MemberID string
		Balance  Money
	}

	Settlement struct {
		FromMemberID string
		ToMemberID   string
		Amount       Money
	}

	// Score is the clamped sum of the two rounded subscores.
	FairnessScore struct {
		MemberID        string
		Score           int
		ExpenseSubscore int
		ChoreSubscore   int
		RawContribution int64
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyPayer         = errors.New("empty payer")
	ErrNoShares           = errors.New("expense has no shares")
	ErrNegativeShare      = errors.New("negative share amount")
	ErrDuplicateShare     = errors.New("duplicate share member")
	ErrSharesMismatch     = errors.New("shares do not sum to expense amount")
	ErrEmptyMember        = errors.New("empty member id")
	ErrEmptyDisplayName   = errors.New("empty display name")
	ErrEmptyGroupName     = errors.New("empty group name")
	ErrEmptyTitle         = errors.New("empty chore title")
	ErrNegativePoints     = errors.New("negative chore points")
	ErrNoParticipants     = errors.New("no participants to split between")
	ErrNameTooLong        = errors.New("display name too long (max 100 characters)")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrTooManyPoints      = errors.New("chore points too large (max 1000000)")
)

// MaxChorePoints bounds a single chore's weight.
const MaxChorePoints = 1_000_000

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Member) Validate() error {
	if strings.TrimSpace(m.DisplayName) == "" {
		return ErrEmptyDisplayName
	}
	if len(m.DisplayName) > 100 {
		return ErrNameTooLong
	}
	return nil
}

// Validate checks an expense before it is persisted. The reconciliation
// functions accept any expense, valid or not.
func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.PayerID) == "" {
		return ErrEmptyPayer
	}
	if len(e.Shares) == 0 {
		return ErrNoShares
	}
	seen := make(map[string]struct{}, len(e.Shares))
	var sum int64
	for _, s := range e.Shares {
		if strings.TrimSpace(s.MemberID) == "" {
			return ErrEmptyMember
		}
		if s.Owed.Cents < 0 {
			return ErrNegativeShare
		}
		if _, dup := seen[s.MemberID]; dup {
			return ErrDuplicateShare
		}
		seen[s.MemberID] = struct{}{}
		sum += s.Owed.Cents
	}
	if sum != e.Amount.Cents {
		return ErrSharesMismatch
	}
	return nil
}

func (c ChoreContribution) Validate() error {
	if strings.TrimSpace(c.MemberID) == "" {
		return ErrEmptyMember
	}
	if strings.TrimSpace(c.Title) == "" {
		return ErrEmptyTitle
	}
	if c.Points < 0 {
		return ErrNegativePoints
	}
	if c.Points > MaxChorePoints {
		return ErrTooManyPoints
	}
	return nil
}

// SplitEqually divides total between memberIDs. Leftover cents go to the
// first members in order, so the shares always add up to total.
func SplitEqually(total Money, memberIDs []string) ([]Share, error) {
	if len(memberIDs) == 0 {
		return nil, ErrNoParticipants
	}
	if total.Cents < 0 {
		return nil, ErrInvalidAmount
	}
	n := int64(len(memberIDs))
	base := total.Cents / n
	rem := total.Cents % n
	shares := make([]Share, len(memberIDs))
	for i, id := range memberIDs {
		owed := base
		if int64(i) < rem {
			owed++
		}
		shares[i] = Share{MemberID: id, Owed: Money{Cents: owed}}
	}
	return shares, nil
}
