package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	periodLayout = "2006-01"
	DateLayout   = "2006-01-02"
)

// Period is a calendar month in YYYY-MM form.
type Period string

func ParsePeriod(raw string) (Period, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(periodLayout, raw)
	if err != nil {
		return "", fmt.Errorf("invalid period %q: expected YYYY-MM", raw)
	}
	return Period(t.Format(periodLayout)), nil
}

func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format(periodLayout))
}

func (p Period) String() string {
	return string(p)
}

// Start returns the first day of the month at 00:00 UTC.
func (p Period) Start() time.Time {
	t, err := time.Parse(periodLayout, string(p))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// End returns the last day of the month at 00:00 UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Bounds returns the half-open instant range [start, next month start).
func (p Period) Bounds() (time.Time, time.Time) {
	start := p.Start()
	return start, start.AddDate(0, 1, 0)
}

func (p Period) Contains(t time.Time) bool {
	from, to := p.Bounds()
	t = t.UTC()
	return !t.Before(from) && t.Before(to)
}

func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return t.UTC(), nil
}
