package services

import (
	"context"
	"fmt"

	"conti/internal/core"
	"conti/internal/log"
)

// Write operations. Each one persists first and then announces the new
// fingerprint; a failed announcement never fails the write.

func (s *ReconciliationService) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	g, err := s.store.CreateGroup(ctx, name)
	if err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}
	s.announce(ctx, g.ID)
	return g, nil
}

func (s *ReconciliationService) GetGroup(ctx context.Context, groupID string) (core.Group, error) {
	return s.store.GetGroup(ctx, groupID)
}

func (s *ReconciliationService) AddMember(ctx context.Context, groupID, displayName string) (core.Member, error) {
	m, err := s.store.AddMember(ctx, groupID, displayName)
	if err != nil {
		return core.Member{}, err
	}
	s.announce(ctx, groupID)
	return m, nil
}

// AddExpense resolves the split against the group's members and stores the
// resulting expense.
func (s *ReconciliationService) AddExpense(ctx context.Context, groupID string, in ExpenseInput) (core.Expense, error) {
	var members []core.Member
	if (in.Split == "" || in.Split == SplitEqual) && len(in.Participants) == 0 {
		snap, err := s.store.LoadSnapshot(ctx, groupID)
		if err != nil {
			return core.Expense{}, err
		}
		members = snap.Members
	}

	e, err := in.Resolve(members)
	if err != nil {
		return core.Expense{}, err
	}
	e, err = s.store.AddExpense(ctx, groupID, e)
	if err != nil {
		return core.Expense{}, err
	}
	s.announce(ctx, groupID)
	return e, nil
}

func (s *ReconciliationService) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	if err := s.store.DeleteExpense(ctx, groupID, expenseID); err != nil {
		return err
	}
	s.announce(ctx, groupID)
	return nil
}

func (s *ReconciliationService) MarkSharePaid(ctx context.Context, groupID, expenseID, memberID string) error {
	if err := s.store.MarkSharePaid(ctx, groupID, expenseID, memberID); err != nil {
		return err
	}
	s.announce(ctx, groupID)
	return nil
}

func (s *ReconciliationService) AddChore(ctx context.Context, groupID string, c core.ChoreContribution) (core.ChoreContribution, error) {
	c, err := s.store.AddChore(ctx, groupID, c)
	if err != nil {
		return core.ChoreContribution{}, err
	}
	s.announce(ctx, groupID)
	return c, nil
}

func (s *ReconciliationService) CompleteChore(ctx context.Context, groupID, choreID string) error {
	if err := s.store.CompleteChore(ctx, groupID, choreID); err != nil {
		return err
	}
	s.announce(ctx, groupID)
	return nil
}

func (s *ReconciliationService) announce(ctx context.Context, groupID string) {
	if s.publisher == nil {
		return
	}
	fp, err := s.Fingerprint(ctx, groupID)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read fingerprint after write", log.FieldGroupID, groupID, log.FieldError, err)
		return
	}
	if err := s.publisher.PublishGroupChanged(ctx, groupID, fp); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish group changed message",
			log.FieldGroupID, groupID,
			log.FieldFingerprint, int64(fp),
			log.FieldError, err)
	}
}

// Members lists the group's members in insertion order.
func (s *ReconciliationService) Members(ctx context.Context, groupID string) ([]core.Member, error) {
	snap, err := s.store.LoadSnapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return snap.Members, nil
}

// MemberNames maps the group's member ids to display names.
func (s *ReconciliationService) MemberNames(ctx context.Context, groupID string) (map[string]string, error) {
	members, err := s.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.DisplayName
	}
	return names, nil
}
