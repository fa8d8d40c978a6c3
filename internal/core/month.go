package core

import (
	"fmt"
	"strings"
	"time"
)

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing d.
func MonthOf(d Date) Month {
	return Month{Year: d.Year(), Month: d.Time.Month()}
}

// ParseMonth accepts "YYYY-MM" or a full "YYYY-MM-DD" date.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	layout := "2006-01"
	if len(s) == len(DateLayout) {
		layout = DateLayout
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// Start is the first day of the month.
func (m Month) Start() Date {
	return NewDate(m.Year, int(m.Month), 1)
}

// End is the first day of the following month, the exclusive upper bound.
func (m Month) End() Date {
	return Date{Time: m.Start().AddDate(0, 1, 0)}
}

// Contains reports whether d falls in [Start, End).
func (m Month) Contains(d Date) bool {
	return !d.Before(m.Start().Time) && d.Before(m.End().Time)
}

// String formats the month as YYYY-MM.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Label is the human readable form, e.g. "January 2024".
func (m Month) Label() string {
	return fmt.Sprintf("%s %d", m.Month.String(), m.Year)
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}
