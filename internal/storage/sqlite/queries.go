package sqlite

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const createGroup = `
INSERT INTO groups (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
`

func (q *Queries) CreateGroup(ctx context.Context, id, name string, stamp int64) error {
	_, err := q.db.ExecContext(ctx, createGroup, id, name, stamp, stamp)
	return err
}

const getGroup = `
SELECT id, name, created_at, updated_at FROM groups WHERE id = ?
`

type GroupRow struct {
	ID        string
	Name      string
	CreatedAt int64
	UpdatedAt int64
}

func (q *Queries) GetGroup(ctx context.Context, id string) (GroupRow, error) {
	var g GroupRow
	err := q.db.QueryRowContext(ctx, getGroup, id).Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

const touchGroup = `
UPDATE groups SET updated_at = ? WHERE id = ?
`

func (q *Queries) TouchGroup(ctx context.Context, id string, stamp int64) error {
	_, err := q.db.ExecContext(ctx, touchGroup, stamp, id)
	return err
}

const createMember = `
INSERT INTO members (id, group_id, display_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) CreateMember(ctx context.Context, id, groupID, displayName string, stamp int64) error {
	_, err := q.db.ExecContext(ctx, createMember, id, groupID, displayName, stamp, stamp)
	return err
}

const listMembers = `
SELECT id, display_name FROM members
WHERE group_id = ? AND deleted_at IS NULL
ORDER BY created_at, id
`

type MemberRow struct {
	ID          string
	DisplayName string
}

func (q *Queries) ListMembers(ctx context.Context, groupID string) ([]MemberRow, error) {
	rows, err := q.db.QueryContext(ctx, listMembers, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MemberRow
	for rows.Next() {
		var i MemberRow
		if err := rows.Scan(&i.ID, &i.DisplayName); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createExpense = `
INSERT INTO expenses (id, group_id, description, amount_cents, payer_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateExpense(ctx context.Context, id, groupID, description string, amountCents int64, payerID string, stamp int64) error {
	_, err := q.db.ExecContext(ctx, createExpense, id, groupID, description, amountCents, payerID, stamp, stamp)
	return err
}

const createShare = `
INSERT INTO expense_shares (expense_id, member_id, position, owed_cents, is_paid, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateShare(ctx context.Context, expenseID, memberID string, position int, owedCents int64, isPaid bool, stamp int64) error {
	_, err := q.db.ExecContext(ctx, createShare, expenseID, memberID, position, owedCents, isPaid, stamp)
	return err
}

const softDeleteExpense = `
UPDATE expenses SET deleted_at = ?, updated_at = ?
WHERE id = ? AND group_id = ? AND deleted_at IS NULL
`

func (q *Queries) SoftDeleteExpense(ctx context.Context, id, groupID string, stamp int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, softDeleteExpense, stamp, stamp, id, groupID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const expenseExists = `
SELECT COUNT(*) FROM expenses WHERE id = ? AND group_id = ? AND deleted_at IS NULL
`

func (q *Queries) ExpenseExists(ctx context.Context, id, groupID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, expenseExists, id, groupID).Scan(&n)
	return n > 0, err
}

const markSharePaid = `
UPDATE expense_shares SET is_paid = 1, updated_at = ?
WHERE expense_id = ? AND member_id = ?
`

func (q *Queries) MarkSharePaid(ctx context.Context, expenseID, memberID string, stamp int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markSharePaid, stamp, expenseID, memberID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listExpenses = `
SELECT id, description, amount_cents, payer_id FROM expenses
WHERE group_id = ? AND deleted_at IS NULL
ORDER BY created_at, id
`

type ExpenseRow struct {
	ID          string
	Description string
	AmountCents int64
	PayerID     string
}

func (q *Queries) ListExpenses(ctx context.Context, groupID string) ([]ExpenseRow, error) {
	rows, err := q.db.QueryContext(ctx, listExpenses, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseRow
	for rows.Next() {
		var i ExpenseRow
		if err := rows.Scan(&i.ID, &i.Description, &i.AmountCents, &i.PayerID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listShares = `
SELECT s.expense_id, s.member_id, s.owed_cents, s.is_paid
FROM expense_shares s
JOIN expenses e ON e.id = s.expense_id
WHERE e.group_id = ? AND e.deleted_at IS NULL
ORDER BY s.expense_id, s.position
`

type ShareRow struct {
	ExpenseID string
	MemberID  string
	OwedCents int64
	IsPaid    bool
}

func (q *Queries) ListShares(ctx context.Context, groupID string) ([]ShareRow, error) {
	rows, err := q.db.QueryContext(ctx, listShares, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ShareRow
	for rows.Next() {
		var i ShareRow
		if err := rows.Scan(&i.ExpenseID, &i.MemberID, &i.OwedCents, &i.IsPaid); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createChore = `
INSERT INTO chore_assignments (id, group_id, member_id, title, points, is_completed, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateChore(ctx context.Context, id, groupID, memberID, title string, points int, completed bool, stamp int64) error {
	_, err := q.db.ExecContext(ctx, createChore, id, groupID, memberID, title, points, completed, stamp, stamp)
	return err
}

const completeChore = `
UPDATE chore_assignments SET is_completed = 1, updated_at = ?
WHERE id = ? AND group_id = ? AND deleted_at IS NULL
`

func (q *Queries) CompleteChore(ctx context.Context, id, groupID string, stamp int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, completeChore, stamp, id, groupID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listChores = `
SELECT id, member_id, title, points, is_completed FROM chore_assignments
WHERE group_id = ? AND deleted_at IS NULL
ORDER BY created_at, id
`

type ChoreRow struct {
	ID          string
	MemberID    string
	Title       string
	Points      int
	IsCompleted bool
}

func (q *Queries) ListChores(ctx context.Context, groupID string) ([]ChoreRow, error) {
	rows, err := q.db.QueryContext(ctx, listChores, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ChoreRow
	for rows.Next() {
		var i ChoreRow
		if err := rows.Scan(&i.ID, &i.MemberID, &i.Title, &i.Points, &i.IsCompleted); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
