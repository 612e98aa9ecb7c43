package schedule

import (
	"testing"
	"time"

	"provisioner/internal/calendar"
	"provisioner/internal/tarefa"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func brCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	hs, err := calendar.NewHolidaySet(calendar.HolidayConfig{Country: "BR"})
	if err != nil {
		t.Fatalf("NewHolidaySet: %v", err)
	}
	return calendar.New(hs)
}

func fill(d time.Time, k tarefa.Kind, n int) []tarefa.Record {
	out := make([]tarefa.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tarefa.Record{TaskID: tarefa.NewTaskID(100 + i), Kind: k, DeliveryDate: d})
	}
	return out
}

func newPlanner(t *testing.T, now time.Time) Planner {
	return Planner{Calendar: brCalendar(t), Policy: DefaultPolicy(), Now: fixedNow(now)}
}

func mustDate(t *testing.T, p Plan, k tarefa.Kind) time.Time {
	t.Helper()
	d, ok := p.Date(k)
	if !ok {
		t.Fatalf("plan has no slot for %s", k)
	}
	return d
}

func TestAllocatorReturnsBaseWhenFree(t *testing.T) {
	t.Parallel()
	a := Allocator{Calendar: brCalendar(t)}
	got, err := a.FindAvailableDate(day(2025, time.October, 15), tarefa.KindText, fill(day(2025, time.October, 15), tarefa.KindText, 4))
	if err != nil {
		t.Fatalf("FindAvailableDate: %v", err)
	}
	if !got.Equal(day(2025, time.October, 15)) {
		t.Fatalf("got %s, want 2025-10-15", got.Format(tarefa.DateLayout))
	}
}

func TestAllocatorSkipsFullDaysAndWeekends(t *testing.T) {
	t.Parallel()
	a := Allocator{Calendar: brCalendar(t)}
	// Monday full -> Friday (weekend skipped).
	recs := fill(day(2025, time.October, 20), tarefa.KindLayout, 5)
	got, err := a.FindAvailableDate(day(2025, time.October, 20), tarefa.KindLayout, recs)
	if err != nil {
		t.Fatalf("FindAvailableDate: %v", err)
	}
	if !got.Equal(day(2025, time.October, 17)) {
		t.Fatalf("got %s, want 2025-10-17", got.Format(tarefa.DateLayout))
	}
	// Other kinds do not count against the capacity.
	got, err = a.FindAvailableDate(day(2025, time.October, 20), tarefa.KindHTML, recs)
	if err != nil || !got.Equal(day(2025, time.October, 20)) {
		t.Fatalf("got %v, %v; want 2025-10-20", got, err)
	}
}

func TestAllocatorNeverReturnsAfterBase(t *testing.T) {
	t.Parallel()
	a := Allocator{Calendar: brCalendar(t)}
	base := day(2025, time.October, 18) // saturday
	got, err := a.FindAvailableDate(base, tarefa.KindText, nil)
	if err != nil {
		t.Fatalf("FindAvailableDate: %v", err)
	}
	if got.After(base) || !got.Equal(day(2025, time.October, 17)) {
		t.Fatalf("got %s, want 2025-10-17", got.Format(tarefa.DateLayout))
	}
}

func TestAllocatorBoundedLookback(t *testing.T) {
	t.Parallel()
	a := Allocator{Calendar: brCalendar(t), MaxLookback: 3}
	var recs []tarefa.Record
	for d := day(2025, time.October, 13); !d.After(day(2025, time.October, 17)); d = d.AddDate(0, 0, 1) {
		recs = append(recs, fill(d, tarefa.KindText, 5)...)
	}
	_, err := a.FindAvailableDate(day(2025, time.October, 17), tarefa.KindText, recs)
	if !tarefa.IsScheduling(err, tarefa.ReasonNoAvailableSlot) {
		t.Fatalf("expected NoAvailableSlot, got %v", err)
	}
}

func TestAllocatorCapacityInvariant(t *testing.T) {
	t.Parallel()
	a := Allocator{Calendar: brCalendar(t), Capacity: 2}
	base := day(2025, time.October, 17)
	var recs []tarefa.Record
	for i := 0; i < 10; i++ {
		got, err := a.FindAvailableDate(base, tarefa.KindHTML, recs)
		if err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
		if n := tarefa.CountOn(recs, got, tarefa.KindHTML); n >= 2 {
			t.Fatalf("allocation %d returned a full day %s (%d)", i, got.Format(tarefa.DateLayout), n)
		}
		recs = append(recs, tarefa.Record{Kind: tarefa.KindHTML, DeliveryDate: got})
		if n := tarefa.CountOn(recs, got, tarefa.KindHTML); n > 2 {
			t.Fatalf("capacity exceeded on %s", got.Format(tarefa.DateLayout))
		}
	}
}

func TestPlanAllKindsFridayDeadline(t *testing.T) {
	t.Parallel()
	p := newPlanner(t, day(2025, time.October, 1))
	plan, err := p.Plan(day(2025, time.October, 17), []tarefa.Kind{tarefa.KindHTML, tarefa.KindText, tarefa.KindLayout}, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := map[tarefa.Kind]time.Time{
		tarefa.KindText:   day(2025, time.October, 15),
		tarefa.KindLayout: day(2025, time.October, 16),
		tarefa.KindHTML:   day(2025, time.October, 17),
	}
	for k, w := range want {
		if got := mustDate(t, plan, k); !got.Equal(w) {
			t.Fatalf("%s = %s, want %s", k, got.Format(tarefa.DateLayout), w.Format(tarefa.DateLayout))
		}
	}
	if plan.Slots[0].Kind != tarefa.KindText || plan.Slots[2].Kind != tarefa.KindHTML {
		t.Fatalf("slots not in precedence order: %+v", plan.Slots)
	}
}

func TestPlanPushesFullWednesdayBack(t *testing.T) {
	t.Parallel()
	p := newPlanner(t, day(2025, time.October, 1))
	recs := fill(day(2025, time.October, 15), tarefa.KindText, 5)
	plan, err := p.Plan(day(2025, time.October, 17), tarefa.AllKinds(), recs)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := mustDate(t, plan, tarefa.KindText); !got.Equal(day(2025, time.October, 14)) {
		t.Fatalf("Text = %s, want 2025-10-14", got.Format(tarefa.DateLayout))
	}
	if got := mustDate(t, plan, tarefa.KindLayout); !got.Equal(day(2025, time.October, 16)) {
		t.Fatalf("Layout = %s, want 2025-10-16", got.Format(tarefa.DateLayout))
	}
}

func TestPlanSingleKindLandsOnDeadline(t *testing.T) {
	t.Parallel()
	p := newPlanner(t, day(2025, time.October, 1))
	plan, err := p.Plan(day(2025, time.October, 20), []tarefa.Kind{tarefa.KindHTML}, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(plan.Slots))
	}
	if got := mustDate(t, plan, tarefa.KindHTML); !got.Equal(day(2025, time.October, 20)) {
		t.Fatalf("HTML = %s, want 2025-10-20", got.Format(tarefa.DateLayout))
	}
}

func TestPlanSkipsHolidayWhenStaggering(t *testing.T) {
	t.Parallel()
	p := newPlanner(t, day(2025, time.November, 1))
	plan, err := p.Plan(day(2025, time.November, 21), tarefa.AllKinds(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := mustDate(t, plan, tarefa.KindLayout); !got.Equal(day(2025, time.November, 19)) {
		t.Fatalf("Layout = %s, want 2025-11-19", got.Format(tarefa.DateLayout))
	}
	if got := mustDate(t, plan, tarefa.KindText); !got.Equal(day(2025, time.November, 18)) {
		t.Fatalf("Text = %s, want 2025-11-18", got.Format(tarefa.DateLayout))
	}
}

func TestPlanKeepsPrecedenceWhenSuccessorIsPushedBack(t *testing.T) {
	t.Parallel()
	p := newPlanner(t, day(2025, time.October, 1))
	// Layout's Thursday and Wednesday are full: Layout lands Tuesday,
	// so Text may not stay on Wednesday.
	recs := append(fill(day(2025, time.October, 16), tarefa.KindLayout, 5), fill(day(2025, time.October, 15), tarefa.KindLayout, 5)...)
	plan, err := p.Plan(day(2025, time.October, 17), tarefa.AllKinds(), recs)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	text := mustDate(t, plan, tarefa.KindText)
	layout := mustDate(t, plan, tarefa.KindLayout)
	html := mustDate(t, plan, tarefa.KindHTML)
	if !layout.Equal(day(2025, time.October, 14)) {
		t.Fatalf("Layout = %s, want 2025-10-14", layout.Format(tarefa.DateLayout))
	}
	if text.After(layout) || layout.After(html) || html.After(day(2025, time.October, 17)) {
		t.Fatalf("precedence violated: text=%s layout=%s html=%s",
			text.Format(tarefa.DateLayout), layout.Format(tarefa.DateLayout), html.Format(tarefa.DateLayout))
	}
}

func TestPlanIndependentBasesIgnoreSuccessor(t *testing.T) {
	t.Parallel()
	p := newPlanner(t, day(2025, time.October, 1))
	p.Policy.Precedence = PrecedenceIndependent
	recs := append(fill(day(2025, time.October, 16), tarefa.KindLayout, 5), fill(day(2025, time.October, 15), tarefa.KindLayout, 5)...)
	plan, err := p.Plan(day(2025, time.October, 17), tarefa.AllKinds(), recs)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := mustDate(t, plan, tarefa.KindText); !got.Equal(day(2025, time.October, 15)) {
		t.Fatalf("Text = %s, want 2025-10-15", got.Format(tarefa.DateLayout))
	}
	if got := mustDate(t, plan, tarefa.KindLayout); !got.Equal(day(2025, time.October, 14)) {
		t.Fatalf("Layout = %s, want 2025-10-14", got.Format(tarefa.DateLayout))
	}
}

func TestParsePrecedencePolicy(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]PrecedencePolicy{"": PrecedenceClamp, "Clamp": PrecedenceClamp, " independent ": PrecedenceIndependent} {
		got, err := ParsePrecedencePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePrecedencePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePrecedencePolicy("chain"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPlanValidation(t *testing.T) {
	t.Parallel()
	p := newPlanner(t, day(2025, time.October, 10))
	tests := []struct {
		name     string
		deadline time.Time
		kinds    []tarefa.Kind
		reason   tarefa.ValidationReason
	}{
		{name: "no kinds", deadline: day(2025, time.October, 17), kinds: nil, reason: tarefa.ReasonNoSubtaskSelected},
		{name: "duplicate kind", deadline: day(2025, time.October, 17), kinds: []tarefa.Kind{tarefa.KindText, tarefa.KindText}, reason: tarefa.ReasonDuplicateKind},
		{name: "weekend deadline", deadline: day(2025, time.October, 18), kinds: tarefa.AllKinds(), reason: tarefa.ReasonDeadlineNotBusinessDay},
		{name: "past deadline", deadline: day(2025, time.October, 9), kinds: tarefa.AllKinds(), reason: tarefa.ReasonDeadlineInPast},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Plan(tt.deadline, tt.kinds, nil)
			if !tarefa.IsValidation(err, tt.reason) {
				t.Fatalf("expected %s, got %v", tt.reason, err)
			}
		})
	}
}

func TestPlanDeadlinePolicies(t *testing.T) {
	t.Parallel()
	p := newPlanner(t, day(2025, time.October, 1))
	saturday := day(2025, time.October, 18)

	p.Policy.Deadline = DeadlineNext
	plan, err := p.Plan(saturday, []tarefa.Kind{tarefa.KindHTML}, nil)
	if err != nil || !plan.Deadline.Equal(day(2025, time.October, 20)) {
		t.Fatalf("next policy: deadline=%v err=%v", plan.Deadline, err)
	}

	p.Policy.Deadline = DeadlinePrevious
	plan, err = p.Plan(saturday, []tarefa.Kind{tarefa.KindHTML}, nil)
	if err != nil || !plan.Deadline.Equal(day(2025, time.October, 17)) {
		t.Fatalf("previous policy: deadline=%v err=%v", plan.Deadline, err)
	}
}

func TestPlanMonthBoundary(t *testing.T) {
	t.Parallel()
	p := newPlanner(t, day(2025, time.September, 1))
	_, err := p.Plan(day(2025, time.October, 1), tarefa.AllKinds(), nil)
	if !tarefa.IsScheduling(err, tarefa.ReasonCrossesMonthBoundary) {
		t.Fatalf("expected CrossesMonthBoundary, got %v", err)
	}

	p.Policy.Month = MonthAllow
	plan, err := p.Plan(day(2025, time.October, 1), tarefa.AllKinds(), nil)
	if err != nil {
		t.Fatalf("Plan with MonthAllow: %v", err)
	}
	if got := mustDate(t, plan, tarefa.KindText); !got.Equal(day(2025, time.September, 29)) {
		t.Fatalf("Text = %s, want 2025-09-29", got.Format(tarefa.DateLayout))
	}
}

func TestPlanBeforeToday(t *testing.T) {
	t.Parallel()
	// Deadline is tomorrow; Text would be yesterday.
	p := newPlanner(t, day(2025, time.October, 15))
	_, err := p.Plan(day(2025, time.October, 16), tarefa.AllKinds(), nil)
	if !tarefa.IsScheduling(err, tarefa.ReasonBeforeToday) {
		t.Fatalf("expected BeforeToday, got %v", err)
	}

	p.Policy.AllowPastSlots = true
	if _, err := p.Plan(day(2025, time.October, 16), tarefa.AllKinds(), nil); err != nil {
		t.Fatalf("Plan with AllowPastSlots: %v", err)
	}
}

func TestPlanRecords(t *testing.T) {
	t.Parallel()
	p := newPlanner(t, day(2025, time.October, 1))
	plan, err := p.Plan(day(2025, time.October, 17), []tarefa.Kind{tarefa.KindText, tarefa.KindHTML}, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	recs := plan.Records(tarefa.NewTaskID(9), "Newsletter", "desc", time.Date(2025, time.October, 1, 13, 0, 0, 0, time.UTC))
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	for _, r := range recs {
		if r.TaskID != "9" || r.TaskTitle != "Newsletter" || r.Description != "desc" || r.Status != tarefa.StatusPending {
			t.Fatalf("shared fields not copied: %+v", r)
		}
		if !r.RegisteredOn.Equal(day(2025, time.October, 1)) {
			t.Fatalf("RegisteredOn = %s", r.RegisteredOn)
		}
	}
	if recs[0].Kind != tarefa.KindText || !recs[0].DeliveryDate.Equal(day(2025, time.October, 16)) {
		t.Fatalf("Text record = %+v", recs[0])
	}
	if recs[0].SubtaskTitle() != "Texto_Newsletter" {
		t.Fatalf("SubtaskTitle = %q", recs[0].SubtaskTitle())
	}
}

func TestParsePolicies(t *testing.T) {
	t.Parallel()
	if p, err := ParseDeadlinePolicy(" Next "); err != nil || p != DeadlineNext {
		t.Fatalf("ParseDeadlinePolicy: %v %v", p, err)
	}
	if _, err := ParseDeadlinePolicy("clamp"); err == nil {
		t.Fatal("expected error")
	}
	if p, err := ParseMonthPolicy(""); err != nil || p != MonthReject {
		t.Fatalf("ParseMonthPolicy: %v %v", p, err)
	}
}
