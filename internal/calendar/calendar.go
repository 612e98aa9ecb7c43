// Package calendar classifies dates as business days and walks across them.
//
// Weekends are built in; holidays come from an injected HolidaySource.
// All dates are normalized to midnight UTC (tarefa.Day) before comparison.
package calendar

import (
	"time"

	"provisioner/internal/tarefa"
)

// maxScanDays bounds Next/Previous/StepBack. A holiday source that blocks ten
// years of weekdays is broken; the walkers then return the zero time.
const maxScanDays = 3660

// HolidaySource reports non-working dates for a configured country/region.
type HolidaySource interface {
	IsHoliday(d time.Time) bool
}

// NoHolidays treats every weekday as a business day.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time) bool { return false }

// DateSet is a fixed set of holiday dates. Handy for tests and extra closures.
type DateSet map[time.Time]string

func (s DateSet) IsHoliday(d time.Time) bool {
	_, ok := s[tarefa.Day(d)]
	return ok
}

// Calendar is safe for concurrent use if its HolidaySource is.
type Calendar struct {
	holidays HolidaySource
}

func New(h HolidaySource) *Calendar {
	if h == nil {
		h = NoHolidays{}
	}
	return &Calendar{holidays: h}
}

// IsBusinessDay is false on Saturday, Sunday and holidays.
func (c *Calendar) IsBusinessDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays.IsHoliday(tarefa.Day(d))
}

// NextBusinessDay returns d if it is a business day, else the first one after it.
func (c *Calendar) NextBusinessDay(d time.Time) time.Time {
	d = tarefa.Day(d)
	for i := 0; i <= maxScanDays; i++ {
		if c.IsBusinessDay(d) {
			return d
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// PreviousBusinessDay returns d if it is a business day, else the last one before it.
func (c *Calendar) PreviousBusinessDay(d time.Time) time.Time {
	d = tarefa.Day(d)
	for i := 0; i <= maxScanDays; i++ {
		if c.IsBusinessDay(d) {
			return d
		}
		d = d.AddDate(0, 0, -1)
	}
	return time.Time{}
}

// StepBackBusinessDays walks back one calendar day at a time and stops on the
// n-th business day strictly before d. n <= 0 returns PreviousBusinessDay(d).
// Month boundaries are not checked here.
func (c *Calendar) StepBackBusinessDays(d time.Time, n int) time.Time {
	if n <= 0 {
		return c.PreviousBusinessDay(d)
	}
	d = tarefa.Day(d)
	for i := 0; n > 0; i++ {
		if i > maxScanDays {
			return time.Time{}
		}
		d = d.AddDate(0, 0, -1)
		if c.IsBusinessDay(d) {
			n--
		}
	}
	return d
}

// BusinessDaysBetween counts business days in (from, to].
func (c *Calendar) BusinessDaysBetween(from, to time.Time) int {
	from, to = tarefa.Day(from), tarefa.Day(to)
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			n++
		}
	}
	return n
}
