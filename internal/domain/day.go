package domain

import (
	"fmt"
	"time"
)

// Day layouts.
const (
	LayoutISO     = "2006-01-02" // logs, CLI flags
	LayoutCompact = "20060102"   // metadata keys
	LayoutDMY     = "02-01-2006" // price API
)

// Day is a calendar day with no time-of-day component.
// It is derived from an instant once, in a fixed timezone, and then moved
// around purely as a date so DST or host timezone never shifts it.
type Day struct {
	t time.Time // always UTC midnight
}

// Date returns the day for y-m-d. Out-of-range values are normalized the way
// time.Date normalizes them (Jan 32 becomes Feb 1).
func Date(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// NewDay returns the day for y-m-d, rejecting values that would be normalized.
func NewDay(year int, month time.Month, day int) (Day, error) {
	d := Date(year, month, day)
	if d.Year() != year || d.Month() != month || d.DayOfMonth() != day {
		return Day{}, fmt.Errorf("invalid calendar day %04d-%02d-%02d", year, int(month), day)
	}
	return d, nil
}

// DayOf returns the calendar day t falls on in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Date(local.Year(), local.Month(), local.Day())
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(LayoutISO, s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return Date(t.Year(), t.Month(), t.Day()), nil
}

func (d Day) Year() int              { return d.t.Year() }
func (d Day) Month() time.Month      { return d.t.Month() }
func (d Day) DayOfMonth() int        { return d.t.Day() }
func (d Day) IsZero() bool           { return d.t.IsZero() }
func (d Day) Before(o Day) bool      { return d.t.Before(o.t) }
func (d Day) After(o Day) bool       { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool       { return d.t.Equal(o.t) }
func (d Day) AddDays(n int) Day      { return Day{t: d.t.AddDate(0, 0, n)} }
func (d Day) StartOfYear() Day       { return Date(d.Year(), time.January, 1) }
func (d Day) Format(l string) string { return d.t.Format(l) }

// String returns YYYY-MM-DD.
func (d Day) String() string { return d.t.Format(LayoutISO) }

// Compact returns YYYYMMDD.
func (d Day) Compact() string { return d.t.Format(LayoutCompact) }

// Start returns the first instant of the day in loc.
func (d Day) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.DayOfMonth(), 0, 0, 0, 0, loc)
}

// DaysUntil returns the number of days from d to o (negative if o is earlier).
func (d Day) DaysUntil(o Day) int {
	return int(o.t.Sub(d.t).Hours() / 24)
}
