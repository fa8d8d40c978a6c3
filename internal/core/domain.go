package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

const (
	maxMerchantLength = 200
	maxCategoryLength = 100
)

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Expense struct {
		ID         string
		UserID     string
		Date       Date
		Merchant   string
		Amount     Money
		Category   string
		Attachment string // storage path, "" when the expense has none
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}
)

var (
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyMerchant     = errors.New("empty merchant name")
	ErrEmptyCategory     = errors.New("empty category")
	ErrMissingUser       = errors.New("missing user")
	ErrForeignAttachment = errors.New("attachment does not belong to user")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string into a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// HasAttachment reports whether the expense references a stored blob.
func (e Expense) HasAttachment() bool {
	return e.Attachment != ""
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrMissingUser
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Merchant) == "" {
		return ErrEmptyMerchant
	}
	if len(e.Merchant) > maxMerchantLength {
		return fmt.Errorf("merchant name too long (max %d characters)", maxMerchantLength)
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(e.Category) > maxCategoryLength {
		return fmt.Errorf("category too long (max %d characters)", maxCategoryLength)
	}
	if e.HasAttachment() && !AttachmentOwnedBy(e.Attachment, e.UserID) {
		return ErrForeignAttachment
	}
	return nil
}
