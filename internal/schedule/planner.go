package schedule

import (
	"fmt"
	"strings"
	"time"

	"provisioner/internal/tarefa"
)

// DeadlinePolicy decides what happens to a deadline that is not a business day.
type DeadlinePolicy string

const (
	DeadlineReject   DeadlinePolicy = "reject"
	DeadlineNext     DeadlinePolicy = "next"
	DeadlinePrevious DeadlinePolicy = "previous"
)

// MonthPolicy decides whether a subtask may land outside the deadline's month.
type MonthPolicy string

const (
	MonthReject MonthPolicy = "reject"
	MonthAllow  MonthPolicy = "allow"
)

// PrecedencePolicy decides whether an earlier kind's base follows a pushed-back
// successor.
type PrecedencePolicy string

const (
	// PrecedenceClamp moves an earlier kind's base to its successor's date
	// when that date is before the base.
	PrecedenceClamp PrecedencePolicy = "clamp"
	// PrecedenceIndependent bases every kind on the deadline only.
	PrecedenceIndependent PrecedencePolicy = "independent"
)

// Policy carries the tunable scheduling rules.
type Policy struct {
	Capacity       int
	MaxLookback    int
	Deadline       DeadlinePolicy
	Month          MonthPolicy
	Precedence     PrecedencePolicy
	AllowPastSlots bool
}

// DefaultPolicy rejects ambiguous input instead of guessing.
func DefaultPolicy() Policy {
	return Policy{
		Capacity:    DefaultCapacity,
		MaxLookback: DefaultMaxLookback,
		Deadline:    DeadlineReject,
		Month:       MonthReject,
		Precedence:  PrecedenceClamp,
	}
}

// ParseDeadlinePolicy accepts "reject", "next" and "previous" ("" = reject).
func ParseDeadlinePolicy(s string) (DeadlinePolicy, error) {
	switch v := DeadlinePolicy(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return DeadlineReject, nil
	case DeadlineReject, DeadlineNext, DeadlinePrevious:
		return v, nil
	default:
		return "", fmt.Errorf("invalid deadline policy %q (want reject|next|previous)", s)
	}
}

// ParseMonthPolicy accepts "reject" and "allow" ("" = reject).
func ParseMonthPolicy(s string) (MonthPolicy, error) {
	switch v := MonthPolicy(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return MonthReject, nil
	case MonthReject, MonthAllow:
		return v, nil
	default:
		return "", fmt.Errorf("invalid month policy %q (want reject|allow)", s)
	}
}

// ParsePrecedencePolicy accepts "clamp" and "independent" ("" = clamp).
func ParsePrecedencePolicy(s string) (PrecedencePolicy, error) {
	switch v := PrecedencePolicy(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return PrecedenceClamp, nil
	case PrecedenceClamp, PrecedenceIndependent:
		return v, nil
	default:
		return "", fmt.Errorf("invalid precedence policy %q (want clamp|independent)", s)
	}
}

// Slot is the resolved delivery date of one kind.
type Slot struct {
	Kind   tarefa.Kind
	Offset int       // business days before the deadline
	Base   time.Time // deadline stepped back by Offset (possibly clamped)
	Date   time.Time // resolved delivery date
}

// Plan is the outcome of scheduling one task.
type Plan struct {
	Deadline time.Time // effective deadline after policy
	Slots    []Slot    // precedence order
}

// Date returns the resolved date for k.
func (p Plan) Date(k tarefa.Kind) (time.Time, bool) {
	for _, s := range p.Slots {
		if s.Kind == k {
			return s.Date, true
		}
	}
	return time.Time{}, false
}

// Records materializes the plan as subtask records sharing the task fields.
func (p Plan) Records(id tarefa.TaskID, title, description string, registeredOn time.Time) []tarefa.Record {
	out := make([]tarefa.Record, 0, len(p.Slots))
	for _, s := range p.Slots {
		out = append(out, tarefa.Record{
			TaskID:       id,
			TaskTitle:    title,
			Kind:         s.Kind,
			Description:  description,
			RegisteredOn: tarefa.Day(registeredOn),
			DeliveryDate: s.Date,
			Status:       tarefa.StatusPending,
		})
	}
	return out
}

// Planner schedules all subtasks of a task.
type Planner struct {
	Calendar BusinessCalendar
	Policy   Policy
	Now      func() time.Time // nil means time.Now
}

func (p Planner) today() time.Time {
	if p.Now != nil {
		return tarefa.Day(p.Now())
	}
	return tarefa.Day(time.Now())
}

func (p Planner) allocator() Allocator {
	return Allocator{Calendar: p.Calendar, Capacity: p.Policy.Capacity, MaxLookback: p.Policy.MaxLookback}
}

// ResolveDeadline validates a deadline and applies the deadline policy.
func (p Planner) ResolveDeadline(deadline time.Time) (time.Time, error) {
	deadline = tarefa.Day(deadline)
	if deadline.IsZero() {
		return time.Time{}, &tarefa.ValidationError{Reason: tarefa.ReasonInvalidDate, Detail: "deadline required"}
	}
	if deadline.Before(p.today()) {
		return time.Time{}, &tarefa.ValidationError{Reason: tarefa.ReasonDeadlineInPast, Detail: tarefa.FormatDate(deadline)}
	}
	if p.Calendar.IsBusinessDay(deadline) {
		return deadline, nil
	}
	switch p.Policy.Deadline {
	case DeadlineNext:
		return p.Calendar.NextBusinessDay(deadline), nil
	case DeadlinePrevious:
		prev := p.Calendar.PreviousBusinessDay(deadline)
		if prev.Before(p.today()) {
			return time.Time{}, &tarefa.ValidationError{Reason: tarefa.ReasonDeadlineInPast, Detail: tarefa.FormatDate(prev)}
		}
		return prev, nil
	default:
		return time.Time{}, &tarefa.ValidationError{Reason: tarefa.ReasonDeadlineNotBusinessDay, Detail: tarefa.FormatDate(deadline)}
	}
}

// Plan computes one delivery date per kind.
//
// Kinds are sorted by precedence; the i-th of k kinds is based (k-1-i) business
// days before the deadline, then pushed back by the allocator while its day is
// full. Each base comes from the deadline. Under PrecedenceClamp (the default)
// an earlier kind's base is also clamped to its successor's date so delivery
// dates keep the precedence order; PrecedenceIndependent skips the clamp.
//
// recs is the capacity universe (the target period's records, without the task
// itself when editing). Any failure aborts the whole plan.
func (p Planner) Plan(deadline time.Time, kinds []tarefa.Kind, recs []tarefa.Record) (Plan, error) {
	if err := tarefa.ValidateKinds(kinds); err != nil {
		return Plan{}, err
	}
	deadline, err := p.ResolveDeadline(deadline)
	if err != nil {
		return Plan{}, err
	}

	sorted := tarefa.SortKinds(kinds)
	k := len(sorted)
	slots := make([]Slot, k)
	alloc := p.allocator()
	today := p.today()

	for i := k - 1; i >= 0; i-- {
		kind := sorted[i]
		offset := (k - 1) - i
		base := deadline
		if offset > 0 {
			base = p.Calendar.StepBackBusinessDays(deadline, offset)
		}
		if p.Policy.Precedence != PrecedenceIndependent && i < k-1 && base.After(slots[i+1].Date) {
			base = slots[i+1].Date
		}

		date, err := alloc.FindAvailableDate(base, kind, recs)
		if err != nil {
			return Plan{}, err
		}
		if p.Policy.Month != MonthAllow && (date.Year() != deadline.Year() || date.Month() != deadline.Month()) {
			return Plan{}, &tarefa.SchedulingError{
				Reason: tarefa.ReasonCrossesMonthBoundary,
				Kind:   kind,
				Base:   base,
				Detail: fmt.Sprintf("resolved %s outside %04d-%02d", tarefa.FormatDate(date), deadline.Year(), int(deadline.Month())),
			}
		}
		if !p.Policy.AllowPastSlots && date.Before(today) {
			return Plan{}, &tarefa.SchedulingError{
				Reason: tarefa.ReasonBeforeToday,
				Kind:   kind,
				Base:   base,
				Detail: fmt.Sprintf("resolved %s before %s", tarefa.FormatDate(date), tarefa.FormatDate(today)),
			}
		}
		slots[i] = Slot{Kind: kind, Offset: offset, Base: base, Date: date}
	}

	return Plan{Deadline: deadline, Slots: slots}, nil
}
