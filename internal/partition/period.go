// Package partition classifies and names the time-bucketed children of a
// partitioned table and reads the settings pgslice stores on it.
package partition

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod is returned for a period other than day or month.
var ErrInvalidPeriod = errors.New("invalid period")

// Period is the width of one partition.
type Period string

const (
	Day   Period = "day"
	Month Period = "month"
	// None matches partitions of any supported width.
	None Period = ""
)

// ParsePeriod accepts "day" or "month".
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case Day, Month:
		return p, nil
	default:
		return None, fmt.Errorf("%w: %q (want day or month)", ErrInvalidPeriod, s)
	}
}

// Digits is the length of the numeric partition suffix, or 0 for None.
func (p Period) Digits() int {
	switch p {
	case Day:
		return 8
	case Month:
		return 6
	default:
		return 0
	}
}

// NameFormat is the time layout of the partition suffix.
func (p Period) NameFormat() string {
	switch p {
	case Day:
		return "20060102"
	case Month:
		return "200601"
	default:
		return ""
	}
}

// Round truncates t (in UTC) to the start of its period.
func (p Period) Round(t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Advance moves t by n periods; n may be negative.
func (p Period) Advance(t time.Time, n int) time.Time {
	if p == Month {
		return t.AddDate(0, n, 0)
	}
	return t.AddDate(0, 0, n)
}

// Suffix renders the partition suffix for the period containing t.
func (p Period) Suffix(t time.Time) string {
	return p.Round(t).Format(p.NameFormat())
}
