package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Day() != 5 || d.Time.Month() != time.January || d.Year() != 2024 {
		t.Fatalf("unexpected date %v", d)
	}
	if d.String() != "2024-01-05" {
		t.Fatalf("String() = %q", d.String())
	}
	for _, in := range []string{"", "05/01/2024", "2024-13-01"} {
		if _, err := ParseDate(in); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", in, err)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		UserID:   "u1",
		Date:     NewDate(2025, 1, 1),
		Merchant: "Coffee Shop",
		Amount:   Money{Cents: 450},
		Category: "coworking",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	withAttachment := good
	withAttachment.Attachment = "u1/abc.png"
	if err := withAttachment.Validate(); err != nil {
		t.Fatalf("expected ok with owned attachment, got %v", err)
	}

	bads := []struct {
		e   Expense
		err error
	}{
		{Expense{Date: NewDate(2025, 1, 1), Merchant: "a", Amount: Money{Cents: 1}, Category: "c"}, ErrMissingUser},
		{Expense{UserID: "u1", Merchant: "a", Amount: Money{Cents: 1}, Category: "c"}, ErrInvalidDate},
		{Expense{UserID: "u1", Date: NewDate(2025, 1, 1), Merchant: " ", Amount: Money{Cents: 1}, Category: "c"}, ErrEmptyMerchant},
		{Expense{UserID: "u1", Date: NewDate(2025, 1, 1), Merchant: "a", Amount: Money{Cents: 0}, Category: "c"}, ErrInvalidAmount},
		{Expense{UserID: "u1", Date: NewDate(2025, 1, 1), Merchant: "a", Amount: Money{Cents: 1}, Category: ""}, ErrEmptyCategory},
		{Expense{UserID: "u1", Date: NewDate(2025, 1, 1), Merchant: "a", Amount: Money{Cents: 1}, Category: "c", Attachment: "u2/x.png"}, ErrForeignAttachment},
	}
	for i, tc := range bads {
		if err := tc.e.Validate(); !errors.Is(err, tc.err) {
			t.Fatalf("case %d expected %v, got %v", i, tc.err, err)
		}
	}
}
