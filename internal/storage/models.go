package storage

import "database/sql"

type Expense struct {
	ID           string
	UserID       string
	Date         string
	MerchantName string
	AmountCents  int64
	Category     string
	Attachment   sql.NullString
	CreatedAt    string
	UpdatedAt    string
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    string
}

type OrphanedAttachment struct {
	ID          int64
	UserID      string
	Path        string
	Reason      string
	CreatedAt   string
	ReclaimedAt sql.NullString
}

type MonthCountRow struct {
	Month string
	Count int64
}

type DailyCategoryTotalRow struct {
	Date       string
	Category   string
	TotalCents int64
}
