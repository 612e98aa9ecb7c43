package schedule

import (
	"fmt"
	"time"

	"provisioner/internal/tarefa"
)

const (
	// DefaultCapacity is the maximum number of same-kind subtasks per day.
	DefaultCapacity = 5
	// DefaultMaxLookback bounds the backward search, in calendar days.
	DefaultMaxLookback = 60
)

// BusinessCalendar is the subset of calendar.Calendar the engine needs.
type BusinessCalendar interface {
	IsBusinessDay(d time.Time) bool
	NextBusinessDay(d time.Time) time.Time
	PreviousBusinessDay(d time.Time) time.Time
	StepBackBusinessDays(d time.Time, n int) time.Time
}

// Allocator places a single subtask.
type Allocator struct {
	Calendar    BusinessCalendar
	Capacity    int // <= 0 means DefaultCapacity
	MaxLookback int // calendar days; <= 0 means DefaultMaxLookback
}

func (a Allocator) capacity() int {
	if a.Capacity <= 0 {
		return DefaultCapacity
	}
	return a.Capacity
}

func (a Allocator) maxLookback() int {
	if a.MaxLookback <= 0 {
		return DefaultMaxLookback
	}
	return a.MaxLookback
}

// FindAvailableDate returns the latest date in [base-MaxLookback, base] that is a
// business day holding fewer than Capacity records of kind in recs.
// It never returns a date after base.
func (a Allocator) FindAvailableDate(base time.Time, kind tarefa.Kind, recs []tarefa.Record) (time.Time, error) {
	base = tarefa.Day(base)
	if base.IsZero() {
		return time.Time{}, &tarefa.SchedulingError{Reason: tarefa.ReasonNoAvailableSlot, Kind: kind, Base: base, Detail: "no base date"}
	}

	load := dayLoad(recs, kind)
	limit := a.capacity()
	candidate := base
	for step := 0; step <= a.maxLookback(); step++ {
		if a.Calendar.IsBusinessDay(candidate) && load[candidate] < limit {
			return candidate, nil
		}
		candidate = candidate.AddDate(0, 0, -1)
	}
	return time.Time{}, &tarefa.SchedulingError{
		Reason: tarefa.ReasonNoAvailableSlot,
		Kind:   kind,
		Base:   base,
		Detail: fmt.Sprintf("lookback of %d days exhausted", a.maxLookback()),
	}
}

// dayLoad indexes how many records of kind deliver on each day.
func dayLoad(recs []tarefa.Record, kind tarefa.Kind) map[time.Time]int {
	m := make(map[time.Time]int)
	for _, r := range recs {
		if r.Kind == kind {
			m[tarefa.Day(r.DeliveryDate)]++
		}
	}
	return m
}
