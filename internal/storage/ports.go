// Package storage defines the persistence ports used by the reconciliation
// service together with the errors shared by every backend.
package storage

import (
	"context"
	"errors"
	"time"

	"conti/internal/core"
)

var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrMemberNotFound  = errors.New("member not found")
	ErrExpenseNotFound = errors.New("expense not found")
	ErrChoreNotFound   = errors.New("chore not found")
	ErrShareNotFound   = errors.New("share not found")
)

// Ports for the persistence adapters.
type (
	// SnapshotReader returns everything a reconciliation run needs for one
	// group. Soft-deleted rows are excluded; the fingerprint is the group's
	// last modification stamp.
	SnapshotReader interface {
		LoadSnapshot(ctx context.Context, groupID string) (core.Snapshot, error)
	}

	// GroupWriter mutates a group. Every successful call advances the
	// group's fingerprint.
	GroupWriter interface {
		CreateGroup(ctx context.Context, name string) (core.Group, error)
		GetGroup(ctx context.Context, groupID string) (core.Group, error)
		AddMember(ctx context.Context, groupID, displayName string) (core.Member, error)
		AddExpense(ctx context.Context, groupID string, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, groupID, expenseID string) error
		MarkSharePaid(ctx context.Context, groupID, expenseID, memberID string) error
		AddChore(ctx context.Context, groupID string, c core.ChoreContribution) (core.ChoreContribution, error)
		CompleteChore(ctx context.Context, groupID, choreID string) error
	}

	Store interface {
		SnapshotReader
		GroupWriter
		Close() error
	}
)

// NextStamp returns the modification stamp for a write happening at now on
// a group last stamped prev. Stamps are Unix nanoseconds and strictly
// increase per group even if the wall clock stalls or steps back.
func NextStamp(prev int64, now time.Time) int64 {
	stamp := now.UnixNano()
	if stamp <= prev {
		stamp = prev + 1
	}
	return stamp
}

// CheckExpenseMembers verifies that the payer and every share holder belong
// to the group.
func CheckExpenseMembers(e core.Expense, isMember func(id string) bool) error {
	if !isMember(e.PayerID) {
		return ErrMemberNotFound
	}
	for _, s := range e.Shares {
		if !isMember(s.MemberID) {
			return ErrMemberNotFound
		}
	}
	return nil
}
