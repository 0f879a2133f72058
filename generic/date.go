package generic

import (
	"encoding/json"
	"time"
)

// =============================================================================
// DATE - Civil date (ledger entries carry no time of day)
// =============================================================================

const DateLayout = "2006-01-02"

// Date is a calendar day in UTC.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// MustParseDate panics on malformed input. Intended for tests and literals.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func Today() Date { return DateOf(time.Now()) }

// Comparison
func (d Date) Before(o Date) bool        { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool         { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool         { return d.Time.Equal(o.Time) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }
func (d Date) IsZero() bool              { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{Time: d.Time.AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int          { return d.Time.Year() }
func (d Date) Month() time.Month  { return d.Time.Month() }
func (d Date) Day() int           { return d.Time.Day() }
func (d Date) String() string     { return d.Time.Format(DateLayout) }
func (d Date) Ptr() *Date         { return &d }

// StartOfWeek returns the Monday of d's ISO week.
func (d Date) StartOfWeek() Date {
	offset := (int(d.Time.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

func (d Date) StartOfMonth() Date { return NewDate(d.Year(), d.Month(), 1) }
func (d Date) StartOfYear() Date  { return NewDate(d.Year(), time.January, 1) }

// DaysBetween returns the number of days from from to to.
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CompareDates orders optional dates: undated first, then chronologically.
func CompareDates(a, b *Date) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}

// =============================================================================
// DATE FILTER - Optional bounds plus handling of undated records
// =============================================================================

// DateFilter selects records by date. Either bound may be open.
//
// The zero value matches everything, undated records included. Once a
// bound is set, undated records match only when Nullable is set.
// NullOnly selects undated records exclusively.
type DateFilter struct {
	Start    *Date `json:"start,omitempty"`
	End      *Date `json:"end,omitempty"`
	Nullable bool  `json:"nullable,omitempty"`
	NullOnly bool  `json:"nullOnly,omitempty"`
}

func Between(start, end Date) DateFilter {
	return DateFilter{Start: &start, End: &end}
}

func (f DateFilter) Contains(d *Date) bool {
	if f.NullOnly {
		return d == nil
	}
	if d == nil {
		return f.Nullable || f.IsUnbounded()
	}
	if f.Start != nil && d.Before(*f.Start) {
		return false
	}
	if f.End != nil && d.After(*f.End) {
		return false
	}
	return true
}

func (f DateFilter) IsUnbounded() bool {
	return f.Start == nil && f.End == nil && !f.NullOnly
}

// IsDangerous reports whether the filter spans an open or too wide range.
func (f DateFilter) IsDangerous(maxSpanDays int) bool {
	if f.NullOnly {
		return false
	}
	if f.Start == nil || f.End == nil {
		return true
	}
	return DaysBetween(*f.Start, *f.End) > maxSpanDays
}

func (f DateFilter) String() string {
	if f.NullOnly {
		return "[null]"
	}
	s := "["
	if f.Start != nil {
		s += f.Start.String()
	}
	s += "~"
	if f.End != nil {
		s += f.End.String()
	}
	if f.Nullable {
		s += "|null"
	}
	return s + "]"
}
