// Package postgres is the multi-instance storage backend built on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"conti/internal/core"
	"conti/internal/storage"
)

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ storage.Store = (*Store)(nil)

type Option func(*Store)

// WithClock sets the clock used to stamp writes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects to databaseURL, verifies the connection and applies
// migrations.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Group{}, core.ErrEmptyGroupName
	}
	stamp := storage.NextStamp(0, s.now())
	g := core.Group{ID: uuid.NewString(), Name: name, CreatedAt: time.Unix(0, stamp).UTC(), Fingerprint: core.Fingerprint(stamp)}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO groups (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		g.ID, g.Name, stamp)
	if err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}
	slog.InfoContext(ctx, "Group created", "group_id", g.ID, "name", g.Name)
	return g, nil
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (core.Group, error) {
	var (
		g                    core.Group
		createdAt, updatedAt int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM groups WHERE id = $1`, groupID).
		Scan(&g.ID, &g.Name, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Group{}, storage.ErrGroupNotFound
	}
	if err != nil {
		return core.Group{}, fmt.Errorf("get group: %w", err)
	}
	g.CreatedAt = time.Unix(0, createdAt).UTC()
	g.Fingerprint = core.Fingerprint(updatedAt)
	return g, nil
}

func (s *Store) AddMember(ctx context.Context, groupID, displayName string) (core.Member, error) {
	m := core.Member{ID: uuid.NewString(), DisplayName: strings.TrimSpace(displayName)}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}
	err := s.inGroupTx(ctx, groupID, func(tx pgx.Tx, stamp int64) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO members (id, group_id, display_name, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
			m.ID, groupID, m.DisplayName, stamp)
		return err
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
	err := s.inGroupTx(ctx, groupID, func(tx pgx.Tx, stamp int64) error {
		known, err := memberSet(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if err := storage.CheckExpenseMembers(e, func(id string) bool { return known[id] }); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		batch.Queue(
			`INSERT INTO expenses (id, group_id, description, amount_cents, payer_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			e.ID, groupID, e.Description, e.Amount.Cents, e.PayerID, stamp)
		for i, sh := range e.Shares {
			batch.Queue(
				`INSERT INTO expense_shares (expense_id, member_id, position, owed_cents, is_paid, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				e.ID, sh.MemberID, i, sh.Owed.Cents, sh.IsPaid, stamp)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}
	slog.InfoContext(ctx, "Expense saved to Postgres",
		"id", e.ID,
		"group_id", groupID,
		"amount_cents", e.Amount.Cents,
		"shares", len(e.Shares))
	return e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	err := s.inGroupTx(ctx, groupID, func(tx pgx.Tx, stamp int64) error {
		tag, err := tx.Exec(ctx,
			`UPDATE expenses SET deleted_at = $1, updated_at = $1
			 WHERE id = $2 AND group_id = $3 AND deleted_at IS NULL`,
			stamp, expenseID, groupID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
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
	err := s.inGroupTx(ctx, groupID, func(tx pgx.Tx, stamp int64) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM expenses WHERE id = $1 AND group_id = $2 AND deleted_at IS NULL)`,
			expenseID, groupID).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrExpenseNotFound
		}
		tag, err := tx.Exec(ctx,
			`UPDATE expense_shares SET is_paid = TRUE, updated_at = $1 WHERE expense_id = $2 AND member_id = $3`,
			stamp, expenseID, memberID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
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
	err := s.inGroupTx(ctx, groupID, func(tx pgx.Tx, stamp int64) error {
		known, err := memberSet(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if !known[c.MemberID] {
			return storage.ErrMemberNotFound
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO chore_assignments (id, group_id, member_id, title, points, is_completed, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
			c.ID, groupID, c.MemberID, c.Title, c.Points, c.IsCompleted, stamp)
		return err
	})
	if err != nil {
		return core.ChoreContribution{}, fmt.Errorf("add chore: %w", err)
	}
	return c, nil
}

func (s *Store) CompleteChore(ctx context.Context, groupID, choreID string) error {
	err := s.inGroupTx(ctx, groupID, func(tx pgx.Tx, stamp int64) error {
		tag, err := tx.Exec(ctx,
			`UPDATE chore_assignments SET is_completed = TRUE, updated_at = $1
			 WHERE id = $2 AND group_id = $3 AND deleted_at IS NULL`,
			stamp, choreID, groupID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrChoreNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete chore: %w", err)
	}
	return nil
}

// LoadSnapshot reads under REPEATABLE READ so the rows and the fingerprint
// describe the same state.
func (s *Store) LoadSnapshot(ctx context.Context, groupID string) (core.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	snap := core.Snapshot{GroupID: groupID}
	var stamp int64
	err = tx.QueryRow(ctx, `SELECT updated_at FROM groups WHERE id = $1`, groupID).Scan(&stamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Snapshot{}, storage.ErrGroupNotFound
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load group: %w", err)
	}
	snap.Fingerprint = core.Fingerprint(stamp)

	rows, _ := tx.Query(ctx,
		`SELECT id, display_name FROM members WHERE group_id = $1 AND deleted_at IS NULL ORDER BY created_at, id`,
		groupID)
	snap.Members, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Member, error) {
		var m core.Member
		err := row.Scan(&m.ID, &m.DisplayName)
		return m, err
	})
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load members: %w", err)
	}

	rows, _ = tx.Query(ctx,
		`SELECT id, description, amount_cents, payer_id FROM expenses
		 WHERE group_id = $1 AND deleted_at IS NULL ORDER BY created_at, id`,
		groupID)
	snap.Expenses, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Expense, error) {
		var e core.Expense
		err := row.Scan(&e.ID, &e.Description, &e.Amount.Cents, &e.PayerID)
		return e, err
	})
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load expenses: %w", err)
	}

	type shareRow struct {
		expenseID string
		share     core.Share
	}
	rows, _ = tx.Query(ctx,
		`SELECT s.expense_id, s.member_id, s.owed_cents, s.is_paid
		 FROM expense_shares s JOIN expenses e ON e.id = s.expense_id
		 WHERE e.group_id = $1 AND e.deleted_at IS NULL
		 ORDER BY s.expense_id, s.position`,
		groupID)
	shares, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shareRow, error) {
		var r shareRow
		err := row.Scan(&r.expenseID, &r.share.MemberID, &r.share.Owed.Cents, &r.share.IsPaid)
		return r, err
	})
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load shares: %w", err)
	}
	byExpense := make(map[string][]core.Share, len(snap.Expenses))
	for _, r := range shares {
		byExpense[r.expenseID] = append(byExpense[r.expenseID], r.share)
	}
	for i := range snap.Expenses {
		snap.Expenses[i].Shares = byExpense[snap.Expenses[i].ID]
	}

	rows, _ = tx.Query(ctx,
		`SELECT id, member_id, title, points, is_completed FROM chore_assignments
		 WHERE group_id = $1 AND deleted_at IS NULL ORDER BY created_at, id`,
		groupID)
	snap.Chores, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ChoreContribution, error) {
		var c core.ChoreContribution
		err := row.Scan(&c.ID, &c.MemberID, &c.Title, &c.Points, &c.IsCompleted)
		return c, err
	})
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load chores: %w", err)
	}

	// CollectRows returns empty slices; keep nil for parity with the other backends.
	if len(snap.Members) == 0 {
		snap.Members = nil
	}
	if len(snap.Expenses) == 0 {
		snap.Expenses = nil
	}
	if len(snap.Chores) == 0 {
		snap.Chores = nil
	}
	return snap, nil
}

// inGroupTx locks the group row, bumps its stamp and runs fn in the same
// transaction.
func (s *Store) inGroupTx(ctx context.Context, groupID string, fn func(tx pgx.Tx, stamp int64) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var prev int64
		err := tx.QueryRow(ctx, `SELECT updated_at FROM groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&prev)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrGroupNotFound
		}
		if err != nil {
			return err
		}
		stamp := storage.NextStamp(prev, s.now())
		if _, err := tx.Exec(ctx, `UPDATE groups SET updated_at = $1 WHERE id = $2`, stamp, groupID); err != nil {
			return err
		}
		return fn(tx, stamp)
	})
}

func memberSet(ctx context.Context, tx pgx.Tx, groupID string) (map[string]bool, error) {
	rows, _ := tx.Query(ctx, `SELECT id FROM members WHERE group_id = $1 AND deleted_at IS NULL`, groupID)
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
