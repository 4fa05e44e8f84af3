// Package clock provides the wall-clock timestamp primitive used by the
// ledger. Timestamps carry second precision and support the elementwise
// calendar-year comparison the replay engine needs for long-term
// determination.
package clock

import "time"

// Timestamp is a wall-clock moment truncated to second precision.
type Timestamp struct {
	t time.Time
}

// New truncates t to second precision and wraps it.
func New(t time.Time) Timestamp {
	return Timestamp{t: t.Truncate(time.Second)}
}

// Time returns the underlying time.Time.
func (ts Timestamp) Time() time.Time { return ts.t }

// Before reports whether ts is strictly before other.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

// After reports whether ts is strictly after other.
func (ts Timestamp) After(other Timestamp) bool { return ts.t.After(other.t) }

// Equal reports whether ts and other are the same instant.
func (ts Timestamp) Equal(other Timestamp) bool { return ts.t.Equal(other.t) }

// Compare returns -1, 0, or 1 as ts is before, equal to, or after other.
func (ts Timestamp) Compare(other Timestamp) int {
	switch {
	case ts.t.Before(other.t):
		return -1
	case ts.t.After(other.t):
		return 1
	default:
		return 0
	}
}

// Add returns ts advanced by d.
func (ts Timestamp) Add(d time.Duration) Timestamp {
	return New(ts.t.Add(d))
}

// CalendarParts is the (Y,M,D,h,m,s) breakdown used for the "more than one
// calendar year" long-term test.
type CalendarParts struct {
	Year, Month, Day, Hour, Minute, Second int
}

// Parts returns the UTC calendar breakdown of ts.
func (ts Timestamp) Parts() CalendarParts {
	u := ts.t.UTC()
	return CalendarParts{
		Year:   u.Year(),
		Month:  int(u.Month()),
		Day:    u.Day(),
		Hour:   u.Hour(),
		Minute: u.Minute(),
		Second: u.Second(),
	}
}

// PlusOneCalendarYear increments the year component only, deliberately
// NOT validating the resulting (Y+1, M, D) as a real calendar date: a
// Feb-29 acquisition produces a Feb-29 "anniversary" in the following,
// possibly non-leap, year.
func (p CalendarParts) PlusOneCalendarYear() CalendarParts {
	p.Year++
	return p
}

// Less compares two CalendarParts elementwise in (Y,M,D,h,m,s) order.
func (p CalendarParts) Less(o CalendarParts) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	if p.Month != o.Month {
		return p.Month < o.Month
	}
	if p.Day != o.Day {
		return p.Day < o.Day
	}
	if p.Hour != o.Hour {
		return p.Hour < o.Hour
	}
	if p.Minute != o.Minute {
		return p.Minute < o.Minute
	}
	return p.Second < o.Second
}

// Format renders ts using the given reference layout (Go's Mon Jan 2
// 15:04:05 MST 2006 scheme), e.g. "2006-01-02 15:04:05".
func (ts Timestamp) Format(layout string) string {
	return ts.t.UTC().Format(layout)
}
