// Package sqlite is the single-node storage backend built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"conti/internal/core"
	"conti/internal/storage"
)

type Store struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

type Option func(*Store)

// WithClock sets the clock used to stamp writes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func Open(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection serializes group stamps.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{db: db, queries: New(db), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Group{}, core.ErrEmptyGroupName
	}
	now := s.now().UTC()
	stamp := storage.NextStamp(0, now)
	g := core.Group{ID: uuid.NewString(), Name: name, CreatedAt: time.Unix(0, stamp).UTC(), Fingerprint: core.Fingerprint(stamp)}

	if err := s.queries.CreateGroup(ctx, g.ID, g.Name, stamp); err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}
	slog.InfoContext(ctx, "Group created", "group_id", g.ID, "name", g.Name)
	return g, nil
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (core.Group, error) {
	row, err := s.queries.GetGroup(ctx, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Group{}, storage.ErrGroupNotFound
	}
	if err != nil {
		return core.Group{}, fmt.Errorf("get group: %w", err)
	}
	return toGroup(row), nil
}

func (s *Store) AddMember(ctx context.Context, groupID, displayName string) (core.Member, error) {
	m := core.Member{ID: uuid.NewString(), DisplayName: strings.TrimSpace(displayName)}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}
	err := s.inGroupTx(ctx, groupID, func(q *Queries, stamp int64) error {
		return q.CreateMember(ctx, m.ID, groupID, m.DisplayName, stamp)
	})
	if err != nil {
		return core.Member{}, fmt.Errorf("add member: %w", err)
	}
	return m, nil
}

func (s *Store) AddExpense(ctx context.Context, groupID string, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	e.ID = uuid.NewString()
	err := s.inGroupTx(ctx, groupID, func(q *Queries, stamp int64) error {
		members, err := q.ListMembers(ctx, groupID)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(members))
		for _, m := range members {
			known[m.ID] = true
		}
		if err := storage.CheckExpenseMembers(e, func(id string) bool { return known[id] }); err != nil {
			return err
		}
		if err := q.CreateExpense(ctx, e.ID, groupID, e.Description, e.Amount.Cents, e.PayerID, stamp); err != nil {
			return err
		}
		for i, sh := range e.Shares {
			if err := q.CreateShare(ctx, e.ID, sh.MemberID, i, sh.Owed.Cents, sh.IsPaid, stamp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}
	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"group_id", groupID,
		"amount_cents", e.Amount.Cents,
		"shares", len(e.Shares))
	return e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	err := s.inGroupTx(ctx, groupID, func(q *Queries, stamp int64) error {
		n, err := q.SoftDeleteExpense(ctx, expenseID, groupID, stamp)
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrExpenseNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

func (s *Store) MarkSharePaid(ctx context.Context, groupID, expenseID, memberID string) error {
	err := s.inGroupTx(ctx, groupID, func(q *Queries, stamp int64) error {
		ok, err := q.ExpenseExists(ctx, expenseID, groupID)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrExpenseNotFound
		}
		n, err := q.MarkSharePaid(ctx, expenseID, memberID, stamp)
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrShareNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark share paid: %w", err)
	}
	return nil
}

func (s *Store) AddChore(ctx context.Context, groupID string, c core.ChoreContribution) (core.ChoreContribution, error) {
	if err := c.Validate(); err != nil {
		return core.ChoreContribution{}, err
	}
	c.ID = uuid.NewString()
	err := s.inGroupTx(ctx, groupID, func(q *Queries, stamp int64) error {
		members, err := q.ListMembers(ctx, groupID)
		if err != nil {
			return err
		}
		found := false
		for _, m := range members {
			if m.ID == c.MemberID {
				found = true
				break
			}
		}
		if !found {
			return storage.ErrMemberNotFound
		}
		return q.CreateChore(ctx, c.ID, groupID, c.MemberID, c.Title, c.Points, c.IsCompleted, stamp)
	})
	if err != nil {
		return core.ChoreContribution{}, fmt.Errorf("add chore: %w", err)
	}
	return c, nil
}

func (s *Store) CompleteChore(ctx context.Context, groupID, choreID string) error {
	err := s.inGroupTx(ctx, groupID, func(q *Queries, stamp int64) error {
		n, err := q.CompleteChore(ctx, choreID, groupID, stamp)
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrChoreNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete chore: %w", err)
	}
	return nil
}

// LoadSnapshot reads the group inside one read transaction so the rows and
// the fingerprint describe the same state.
func (s *Store) LoadSnapshot(ctx context.Context, groupID string) (core.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()
	q := s.queries.WithTx(tx)

	g, err := q.GetGroup(ctx, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, storage.ErrGroupNotFound
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load group: %w", err)
	}

	members, err := q.ListMembers(ctx, groupID)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load members: %w", err)
	}
	expenses, err := q.ListExpenses(ctx, groupID)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load expenses: %w", err)
	}
	shares, err := q.ListShares(ctx, groupID)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load shares: %w", err)
	}
	chores, err := q.ListChores(ctx, groupID)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load chores: %w", err)
	}

	return assemble(g, members, expenses, shares, chores), nil
}

// inGroupTx runs fn in a transaction after bumping the group's stamp.
func (s *Store) inGroupTx(ctx context.Context, groupID string, fn func(q *Queries, stamp int64) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := s.queries.WithTx(tx)

	g, err := q.GetGroup(ctx, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrGroupNotFound
	}
	if err != nil {
		return err
	}
	stamp := storage.NextStamp(g.UpdatedAt, s.now())
	if err := q.TouchGroup(ctx, groupID, stamp); err != nil {
		return err
	}
	if err := fn(q, stamp); err != nil {
		return err
	}
	return tx.Commit()
}

func toGroup(row GroupRow) core.Group {
	return core.Group{
		ID:          row.ID,
		Name:        row.Name,
		CreatedAt:   time.Unix(0, row.CreatedAt).UTC(),
		Fingerprint: core.Fingerprint(row.UpdatedAt),
	}
}

func assemble(g GroupRow, members []MemberRow, expenses []ExpenseRow, shares []ShareRow, chores []ChoreRow) core.Snapshot {
	snap := core.Snapshot{GroupID: g.ID, Fingerprint: core.Fingerprint(g.UpdatedAt)}

	for _, m := range members {
		snap.Members = append(snap.Members, core.Member{ID: m.ID, DisplayName: m.DisplayName})
	}

	byExpense := make(map[string][]core.Share, len(expenses))
	for _, sh := range shares {
		byExpense[sh.ExpenseID] = append(byExpense[sh.ExpenseID], core.Share{
			MemberID: sh.MemberID,
			Owed:     core.Money{Cents: sh.OwedCents},
			IsPaid:   sh.IsPaid,
		})
	}
	for _, e := range expenses {
		snap.Expenses = append(snap.Expenses, core.Expense{
			ID:          e.ID,
			Description: e.Description,
			Amount:      core.Money{Cents: e.AmountCents},
			PayerID:     e.PayerID,
			Shares:      byExpense[e.ID],
		})
	}

	for _, c := range chores {
		snap.Chores = append(snap.Chores, core.ChoreContribution{
			ID:          c.ID,
			MemberID:    c.MemberID,
			Title:       c.Title,
			Points:      c.Points,
			IsCompleted: c.IsCompleted,
		})
	}
	return snap
}
