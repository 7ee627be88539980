// Package memory is an in-process storage backend for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"conti/internal/core"
	"conti/internal/storage"
)

type group struct {
	info     core.Group
	stamp    int64
	members  []core.Member
	expenses []*expense
	chores   []*core.ChoreContribution
}

type expense struct {
	core.Expense
	deleted bool
}

type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	groups map[string]*group
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{now: time.Now, groups: make(map[string]*group)}
}

// NewWithClock returns a store that stamps writes using now.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateGroup(_ context.Context, name string) (core.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Group{}, core.ErrEmptyGroupName
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	g := &group{info: core.Group{ID: uuid.NewString(), Name: name, CreatedAt: now}}
	g.touch(now)
	s.groups[g.info.ID] = g
	return g.snapshotInfo(), nil
}

func (s *Store) GetGroup(_ context.Context, groupID string) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return core.Group{}, storage.ErrGroupNotFound
	}
	return g.snapshotInfo(), nil
}

func (s *Store) AddMember(_ context.Context, groupID, displayName string) (core.Member, error) {
	m := core.Member{ID: uuid.NewString(), DisplayName: strings.TrimSpace(displayName)}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return core.Member{}, storage.ErrGroupNotFound
	}
	g.members = append(g.members, m)
	g.touch(s.now())
	return m, nil
}

func (s *Store) AddExpense(_ context.Context, groupID string, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return core.Expense{}, storage.ErrGroupNotFound
	}
	if err := storage.CheckExpenseMembers(e, g.isMember); err != nil {
		return core.Expense{}, err
	}
	e.ID = uuid.NewString()
	e.Shares = append([]core.Share(nil), e.Shares...)
	g.expenses = append(g.expenses, &expense{Expense: e})
	g.touch(s.now())
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, groupID, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return storage.ErrGroupNotFound
	}
	e := g.findExpense(expenseID)
	if e == nil {
		return storage.ErrExpenseNotFound
	}
	e.deleted = true
	g.touch(s.now())
	return nil
}

func (s *Store) MarkSharePaid(_ context.Context, groupID, expenseID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return storage.ErrGroupNotFound
	}
	e := g.findExpense(expenseID)
	if e == nil {
		return storage.ErrExpenseNotFound
	}
	for i := range e.Shares {
		if e.Shares[i].MemberID == memberID {
			e.Shares[i].IsPaid = true
			g.touch(s.now())
			return nil
		}
	}
	return storage.ErrShareNotFound
}

func (s *Store) AddChore(_ context.Context, groupID string, c core.ChoreContribution) (core.ChoreContribution, error) {
	if err := c.Validate(); err != nil {
		return core.ChoreContribution{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return core.ChoreContribution{}, storage.ErrGroupNotFound
	}
	if !g.isMember(c.MemberID) {
		return core.ChoreContribution{}, storage.ErrMemberNotFound
	}
	c.ID = uuid.NewString()
	stored := c
	g.chores = append(g.chores, &stored)
	g.touch(s.now())
	return c, nil
}

func (s *Store) CompleteChore(_ context.Context, groupID, choreID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return storage.ErrGroupNotFound
	}
	for _, c := range g.chores {
		if c.ID == choreID {
			c.IsCompleted = true
			g.touch(s.now())
			return nil
		}
	}
	return storage.ErrChoreNotFound
}

// LoadSnapshot returns deep copies so callers can never observe later writes.
func (s *Store) LoadSnapshot(_ context.Context, groupID string) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return core.Snapshot{}, storage.ErrGroupNotFound
	}

	snap := core.Snapshot{
		GroupID:     groupID,
		Members:     append([]core.Member(nil), g.members...),
		Fingerprint: core.Fingerprint(g.stamp),
	}
	for _, e := range g.expenses {
		if e.deleted {
			continue
		}
		cp := e.Expense
		cp.Shares = append([]core.Share(nil), e.Shares...)
		snap.Expenses = append(snap.Expenses, cp)
	}
	for _, c := range g.chores {
		snap.Chores = append(snap.Chores, *c)
	}
	return snap, nil
}

func (g *group) touch(now time.Time) {
	g.stamp = storage.NextStamp(g.stamp, now)
}

func (g *group) snapshotInfo() core.Group {
	info := g.info
	info.Fingerprint = core.Fingerprint(g.stamp)
	return info
}

func (g *group) isMember(id string) bool {
	for _, m := range g.members {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (g *group) findExpense(id string) *expense {
	for _, e := range g.expenses {
		if e.ID == id && !e.deleted {
			return e
		}
	}
	return nil
}
