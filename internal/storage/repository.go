package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"notaspese/internal/core"
)

// timestampLayout keeps a fixed width so that TEXT ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations on their own connection before the pool is opened
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(timestampLayout)
}

// CreateExpense stores e under a fresh id and returns the stored row.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	row, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		ID:           uuid.NewString(),
		UserID:       e.UserID,
		Date:         e.Date.String(),
		MerchantName: e.Merchant,
		AmountCents:  e.Amount.Cents,
		Category:     e.Category,
		Attachment:   nullAttachment(e.Attachment),
		CreatedAt:    r.timestamp(),
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", row.ID,
		"user_id", row.UserID,
		"merchant", row.MerchantName,
		"amount_cents", row.AmountCents,
		"date", row.Date)

	return expenseFromRow(row)
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, GetExpenseParams{ID: id, UserID: userID})
	if err != nil {
		return core.Expense{}, notFound("get expense", err)
	}
	return expenseFromRow(row)
}

// ListExpenses returns the user's expenses, newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.queries.ListExpensesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expensesFromRows(rows)
}

// ListExpensesWithAttachment returns the expenses dated in [from, to) that
// reference a blob.
func (r *SQLiteRepository) ListExpensesWithAttachment(ctx context.Context, userID string, from, to core.Date) ([]core.Expense, error) {
	rows, err := r.queries.ListExpensesWithAttachmentInRange(ctx, DateRangeParams{
		UserID: userID,
		From:   from.String(),
		To:     to.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses with attachment: %w", err)
	}
	return expensesFromRows(rows)
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	row, err := r.queries.UpdateExpense(ctx, UpdateExpenseParams{
		ID:           e.ID,
		UserID:       e.UserID,
		Date:         e.Date.String(),
		MerchantName: e.Merchant,
		AmountCents:  e.Amount.Cents,
		Category:     e.Category,
		Attachment:   nullAttachment(e.Attachment),
		UpdatedAt:    r.timestamp(),
	})
	if err != nil {
		return core.Expense{}, notFound("update expense", err)
	}

	slog.InfoContext(ctx, "Expense updated in SQLite",
		"id", row.ID,
		"user_id", row.UserID,
		"amount_cents", row.AmountCents)

	return expenseFromRow(row)
}

// DeleteExpense removes the row and returns it as it was.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	row, err := r.queries.DeleteExpense(ctx, DeleteExpenseParams{ID: id, UserID: userID})
	if err != nil {
		return core.Expense{}, notFound("delete expense", err)
	}

	slog.InfoContext(ctx, "Expense deleted from SQLite", "id", row.ID, "user_id", row.UserID)
	return expenseFromRow(row)
}

func (r *SQLiteRepository) DeleteUserExpenses(ctx context.Context, userID string) (int64, error) {
	n, err := r.queries.DeleteExpensesByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user expenses: %w", err)
	}
	return n, nil
}

// ListCategories returns the categories the user has used, most recent first.
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]string, error) {
	categories, err := r.queries.ListCategoriesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (r *SQLiteRepository) ListMonthCounts(ctx context.Context, userID string) ([]core.MonthCount, error) {
	rows, err := r.queries.ListMonthCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list month counts: %w", err)
	}
	out := make([]core.MonthCount, 0, len(rows))
	for _, row := range rows {
		m, err := core.ParseMonth(row.Month)
		if err != nil {
			return nil, fmt.Errorf("parse month %q: %w", row.Month, err)
		}
		out = append(out, core.MonthCount{Month: m, Count: int(row.Count)})
	}
	return out, nil
}

func (r *SQLiteRepository) ListDailyCategoryTotals(ctx context.Context, userID string, m core.Month) ([]core.DailyCategoryTotal, error) {
	rows, err := r.queries.ListDailyCategoryTotals(ctx, DateRangeParams{
		UserID: userID,
		From:   m.Start().String(),
		To:     m.End().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("list daily category totals: %w", err)
	}
	out := make([]core.DailyCategoryTotal, 0, len(rows))
	for _, row := range rows {
		d, err := core.ParseDate(row.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, core.DailyCategoryTotal{
			Date:     d,
			Category: row.Category,
			Total:    core.Money{Cents: row.TotalCents},
		})
	}
	return out, nil
}

// AttachmentReferenced reports whether any expense still points at path.
func (r *SQLiteRepository) AttachmentReferenced(ctx context.Context, path string) (bool, error) {
	n, err := r.queries.CountAttachmentReferences(ctx, path)
	if err != nil {
		return false, fmt.Errorf("count attachment references: %w", err)
	}
	return n > 0, nil
}

// CreateUser stores a new account. ErrDuplicate is returned when the email
// is already registered.
func (r *SQLiteRepository) CreateUser(ctx context.Context, email, passwordHash string) (core.User, error) {
	row, err := r.queries.CreateUser(ctx, CreateUserParams{
		ID:           uuid.NewString(),
		Email:        core.NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    r.timestamp(),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, fmt.Errorf("create user: %w", ErrDuplicate)
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "User created", "user_id", row.ID)
	return userFromRow(row)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row, err := r.queries.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if err != nil {
		return core.User{}, notFound("get user by email", err)
	}
	return userFromRow(row)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row, err := r.queries.GetUserByID(ctx, id)
	if err != nil {
		return core.User{}, notFound("get user", err)
	}
	return userFromRow(row)
}

// DeleteUser removes the account and any expenses still left, in one transaction.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if _, err := q.DeleteExpensesByUser(ctx, id); err != nil {
		return fmt.Errorf("delete user expenses: %w", err)
	}
	n, err := q.DeleteUser(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete user: %w", ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	slog.InfoContext(ctx, "User deleted", "user_id", id)
	return nil
}

// RecordOrphan appends an entry to the orphaned attachment log.
func (r *SQLiteRepository) RecordOrphan(ctx context.Context, userID, path string, reason core.OrphanReason) (core.Orphan, error) {
	createdAt := r.timestamp()
	id, err := r.queries.InsertOrphan(ctx, InsertOrphanParams{
		UserID:    userID,
		Path:      path,
		Reason:    string(reason),
		CreatedAt: createdAt,
	})
	if err != nil {
		return core.Orphan{}, fmt.Errorf("record orphan: %w", err)
	}
	slog.WarnContext(ctx, "Orphaned attachment recorded",
		"id", id,
		"user_id", userID,
		"path", path,
		"reason", reason)
	return orphanFromRow(OrphanedAttachment{
		ID:        id,
		UserID:    userID,
		Path:      path,
		Reason:    string(reason),
		CreatedAt: createdAt,
	})
}

func (r *SQLiteRepository) GetOrphan(ctx context.Context, id int64) (core.Orphan, error) {
	row, err := r.queries.GetOrphan(ctx, id)
	if err != nil {
		return core.Orphan{}, notFound("get orphan", err)
	}
	return orphanFromRow(row)
}

// ListPendingOrphans returns up to limit unreclaimed entries, oldest first.
func (r *SQLiteRepository) ListPendingOrphans(ctx context.Context, limit int) ([]core.Orphan, error) {
	rows, err := r.queries.ListPendingOrphans(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending orphans: %w", err)
	}
	out := make([]core.Orphan, 0, len(rows))
	for _, row := range rows {
		o, err := orphanFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *SQLiteRepository) MarkOrphanReclaimed(ctx context.Context, id int64) error {
	if err := r.queries.MarkOrphanReclaimed(ctx, MarkOrphanReclaimedParams{
		ID:          id,
		ReclaimedAt: r.timestamp(),
	}); err != nil {
		return fmt.Errorf("mark orphan reclaimed: %w", err)
	}
	slog.InfoContext(ctx, "Orphaned attachment reclaimed", "id", id)
	return nil
}

func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func nullAttachment(p string) sql.NullString {
	p = core.NormalizeAttachment(p)
	return sql.NullString{String: p, Valid: p != ""}
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func expenseFromRow(row Expense) (core.Expense, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", row.ID, err)
	}
	createdAt, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: parse created_at: %w", row.ID, err)
	}
	updatedAt, err := parseTimestamp(row.UpdatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: parse updated_at: %w", row.ID, err)
	}
	return core.Expense{
		ID:         row.ID,
		UserID:     row.UserID,
		Date:       date,
		Merchant:   row.MerchantName,
		Amount:     core.Money{Cents: row.AmountCents},
		Category:   row.Category,
		Attachment: row.Attachment.String,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func expensesFromRows(rows []Expense) ([]core.Expense, error) {
	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := expenseFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func userFromRow(row User) (core.User, error) {
	createdAt, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("user %s: parse created_at: %w", row.ID, err)
	}
	return core.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		CreatedAt:    createdAt,
	}, nil
}

func orphanFromRow(row OrphanedAttachment) (core.Orphan, error) {
	createdAt, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.Orphan{}, fmt.Errorf("orphan %d: parse created_at: %w", row.ID, err)
	}
	o := core.Orphan{
		ID:        row.ID,
		UserID:    row.UserID,
		Path:      row.Path,
		Reason:    core.OrphanReason(row.Reason),
		CreatedAt: createdAt,
	}
	if row.ReclaimedAt.Valid {
		if o.ReclaimedAt, err = parseTimestamp(row.ReclaimedAt.String); err != nil {
			return core.Orphan{}, fmt.Errorf("orphan %d: parse reclaimed_at: %w", row.ID, err)
		}
	}
	return o, nil
}
