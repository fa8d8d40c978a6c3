package storage

import (
	"context"
	"database/sql"
)

const expenseColumns = `id, user_id, date, merchant_name, amount_cents, category, attachment, created_at, updated_at`

func scanExpense(row interface{ Scan(...any) error }) (Expense, error) {
	var e Expense
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Date,
		&e.MerchantName,
		&e.AmountCents,
		&e.Category,
		&e.Attachment,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

func (q *Queries) queryExpenses(ctx context.Context, query string, args ...any) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createExpense = `
INSERT INTO expenses (id, user_id, date, merchant_name, amount_cents, category, attachment, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + expenseColumns

type CreateExpenseParams struct {
	ID           string
	UserID       string
	Date         string
	MerchantName string
	AmountCents  int64
	Category     string
	Attachment   sql.NullString
	CreatedAt    string
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, createExpense,
		arg.ID,
		arg.UserID,
		arg.Date,
		arg.MerchantName,
		arg.AmountCents,
		arg.Category,
		arg.Attachment,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return scanExpense(row)
}

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ? AND user_id = ?`

type GetExpenseParams struct {
	ID     string
	UserID string
}

func (q *Queries) GetExpense(ctx context.Context, arg GetExpenseParams) (Expense, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpense, arg.ID, arg.UserID))
}

const listExpensesByUser = `
SELECT ` + expenseColumns + `
FROM expenses
WHERE user_id = ?
ORDER BY date DESC, created_at DESC`

func (q *Queries) ListExpensesByUser(ctx context.Context, userID string) ([]Expense, error) {
	return q.queryExpenses(ctx, listExpensesByUser, userID)
}

const listExpensesWithAttachmentInRange = `
SELECT ` + expenseColumns + `
FROM expenses
WHERE user_id = ?
  AND attachment IS NOT NULL
  AND attachment <> ''
  AND date >= ?
  AND date < ?
ORDER BY date ASC, created_at ASC`

type DateRangeParams struct {
	UserID string
	From   string
	To     string
}

func (q *Queries) ListExpensesWithAttachmentInRange(ctx context.Context, arg DateRangeParams) ([]Expense, error) {
	return q.queryExpenses(ctx, listExpensesWithAttachmentInRange, arg.UserID, arg.From, arg.To)
}

const updateExpense = `
UPDATE expenses
SET date = ?, merchant_name = ?, amount_cents = ?, category = ?, attachment = ?, updated_at = ?
WHERE id = ? AND user_id = ?
RETURNING ` + expenseColumns

type UpdateExpenseParams struct {
	ID           string
	UserID       string
	Date         string
	MerchantName string
	AmountCents  int64
	Category     string
	Attachment   sql.NullString
	UpdatedAt    string
}

func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, updateExpense,
		arg.Date,
		arg.MerchantName,
		arg.AmountCents,
		arg.Category,
		arg.Attachment,
		arg.UpdatedAt,
		arg.ID,
		arg.UserID,
	)
	return scanExpense(row)
}

const deleteExpense = `DELETE FROM expenses WHERE id = ? AND user_id = ? RETURNING ` + expenseColumns

type DeleteExpenseParams struct {
	ID     string
	UserID string
}

func (q *Queries) DeleteExpense(ctx context.Context, arg DeleteExpenseParams) (Expense, error) {
	return scanExpense(q.db.QueryRowContext(ctx, deleteExpense, arg.ID, arg.UserID))
}

const deleteExpensesByUser = `DELETE FROM expenses WHERE user_id = ?`

func (q *Queries) DeleteExpensesByUser(ctx context.Context, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpensesByUser, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listCategoriesByUser = `
SELECT category
FROM expenses
WHERE user_id = ?
GROUP BY category
ORDER BY MAX(date) DESC, category ASC`

func (q *Queries) ListCategoriesByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listCategoriesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		items = append(items, category)
	}
	return items, rows.Err()
}

const countAttachmentReferences = `SELECT COUNT(*) FROM expenses WHERE attachment = ?`

func (q *Queries) CountAttachmentReferences(ctx context.Context, path string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countAttachmentReferences, path).Scan(&n)
	return n, err
}

const listMonthCounts = `
SELECT month, count
FROM how_many_expenses_by_month
WHERE user_id = ?
ORDER BY month DESC`

func (q *Queries) ListMonthCounts(ctx context.Context, userID string) ([]MonthCountRow, error) {
	rows, err := q.db.QueryContext(ctx, listMonthCounts, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MonthCountRow
	for rows.Next() {
		var i MonthCountRow
		if err := rows.Scan(&i.Month, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listDailyCategoryTotals = `
SELECT date, category, total_cents
FROM expenses_summary_by_date_and_category
WHERE user_id = ?
  AND date >= ?
  AND date < ?
ORDER BY date ASC, category ASC`

func (q *Queries) ListDailyCategoryTotals(ctx context.Context, arg DateRangeParams) ([]DailyCategoryTotalRow, error) {
	rows, err := q.db.QueryContext(ctx, listDailyCategoryTotals, arg.UserID, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DailyCategoryTotalRow
	for rows.Next() {
		var i DailyCategoryTotalRow
		if err := rows.Scan(&i.Date, &i.Category, &i.TotalCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createUser = `
INSERT INTO users (id, email, password_hash, created_at)
VALUES (?, ?, ?, ?)
RETURNING id, email, password_hash, created_at`

type CreateUserParams struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, createUser, arg.ID, arg.Email, arg.PasswordHash, arg.CreatedAt).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUserByEmail, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

const getUserByID = `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUserByID, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

const deleteUser = `DELETE FROM users WHERE id = ?`

func (q *Queries) DeleteUser(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteUser, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertOrphan = `
INSERT INTO orphaned_attachments (user_id, path, reason, created_at)
VALUES (?, ?, ?, ?)
RETURNING id`

type InsertOrphanParams struct {
	UserID    string
	Path      string
	Reason    string
	CreatedAt string
}

func (q *Queries) InsertOrphan(ctx context.Context, arg InsertOrphanParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, insertOrphan, arg.UserID, arg.Path, arg.Reason, arg.CreatedAt).Scan(&id)
	return id, err
}

const listPendingOrphans = `
SELECT id, user_id, path, reason, created_at, reclaimed_at
FROM orphaned_attachments
WHERE reclaimed_at IS NULL
ORDER BY created_at ASC, id ASC
LIMIT ?`

func (q *Queries) ListPendingOrphans(ctx context.Context, limit int64) ([]OrphanedAttachment, error) {
	rows, err := q.db.QueryContext(ctx, listPendingOrphans, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrphanedAttachment
	for rows.Next() {
		var i OrphanedAttachment
		if err := rows.Scan(&i.ID, &i.UserID, &i.Path, &i.Reason, &i.CreatedAt, &i.ReclaimedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getOrphan = `
SELECT id, user_id, path, reason, created_at, reclaimed_at
FROM orphaned_attachments
WHERE id = ?`

func (q *Queries) GetOrphan(ctx context.Context, id int64) (OrphanedAttachment, error) {
	var i OrphanedAttachment
	err := q.db.QueryRowContext(ctx, getOrphan, id).
		Scan(&i.ID, &i.UserID, &i.Path, &i.Reason, &i.CreatedAt, &i.ReclaimedAt)
	return i, err
}

const markOrphanReclaimed = `UPDATE orphaned_attachments SET reclaimed_at = ? WHERE id = ? AND reclaimed_at IS NULL`

type MarkOrphanReclaimedParams struct {
	ID          int64
	ReclaimedAt string
}

func (q *Queries) MarkOrphanReclaimed(ctx context.Context, arg MarkOrphanReclaimedParams) error {
	_, err := q.db.ExecContext(ctx, markOrphanReclaimed, arg.ReclaimedAt, arg.ID)
	return err
}
