package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DayLayout is the wire and storage format of a Day.
const DayLayout = "2006-01-02"

// Day is a calendar date with no time-of-day component.
//
// Internally it is midnight UTC of that date, so day arithmetic never meets a
// DST transition and two equal days compare equal with ==. Which instants
// belong to a day depends on a zone and is answered by Start/End/DayOf.
//
// The zero Day means "no day" (e.g. a streak that never started).
type Day struct {
	t time.Time
}

// NewDay builds a Day from its calendar fields. Out-of-range values are
// normalized the way time.Date normalizes them.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar day that instant t falls on in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	return NewDay(t.In(loc).Date())
}

// ParseDay parses a YYYY-MM-DD string. Impossible dates such as 2024-02-30
// are rejected rather than normalized.
func ParseDay(s string) (Day, error) {
	t, err := time.ParseInLocation(DayLayout, s, time.UTC)
	if err != nil {
		return Day{}, fmt.Errorf("model: parsing day %q: %w", s, err)
	}
	return Day{t: t}, nil
}

func (d Day) IsZero() bool { return d.t.IsZero() }

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DayLayout)
}

func (d Day) Year() int { return d.t.Year() }
func (d Day) Month() time.Month { return d.t.Month() }
func (d Day) DayOfMonth() int { return d.t.Day() }
func (d Day) Weekday() time.Weekday { return d.t.Weekday() }

// AddDays returns the day n days later (earlier for negative n).
func (d Day) AddDays(n int) Day {
	return Day{t: d.t.AddDate(0, 0, n)}
}

func (d Day) Before(o Day) bool { return d.t.Before(o.t) }
func (d Day) After(o Day) bool { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool { return d.t.Equal(o.t) }

// Sub returns the number of days from o to d.
func (d Day) Sub(o Day) int {
	return int(d.t.Sub(o.t).Round(time.Hour).Hours() / 24)
}

// Start returns the first instant of the day in loc.
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.t.Year(), d.t.Month(), d.t.Day(), 0, 0, 0, 0, loc)
}

// End returns the first instant of the following day in loc (exclusive bound).
func (d Day) End(loc *time.Location) time.Time {
	return d.AddDays(1).Start(loc)
}

// Contains reports whether instant t falls on d in loc.
func (d Day) Contains(t time.Time, loc *time.Location) bool {
	return DayOf(t, loc) == d
}

// DaysBetween lists every day from `from` to `to`, both inclusive.
// It returns nil when to is before from.
func DaysBetween(from, to Day) []Day {
	if to.Before(from) {
		return nil
	}
	days := make([]Day, 0, to.Sub(from)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// MarshalText encodes the day as YYYY-MM-DD (empty for the zero day).
// Because Day is a TextMarshaler it also works as a JSON map key.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the day as TEXT; the zero day is stored as NULL.
func (d Day) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Day{}
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case time.Time:
		*d = NewDay(v.UTC().Date())
		return nil
	default:
		return fmt.Errorf("model: cannot scan %T into Day", src)
	}
}
