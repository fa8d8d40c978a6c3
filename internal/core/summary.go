package core

// MonthCount is one row of the per-month expense count aggregate.
type MonthCount struct {
	Month Month
	Count int
}

// DailyCategoryTotal is one row of the per-date, per-category sum aggregate.
type DailyCategoryTotal struct {
	Date     Date
	Category string
	Total    Money
}
