package calendar

import (
	"testing"
	"time"

	"provisioner/internal/tarefa"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func brazil(t *testing.T, optional ...string) *Calendar {
	t.Helper()
	hs, err := NewHolidaySet(HolidayConfig{Country: "BR", Optional: optional})
	if err != nil {
		t.Fatalf("NewHolidaySet: %v", err)
	}
	return New(hs)
}

func TestIsBusinessDay(t *testing.T) {
	t.Parallel()
	c := brazil(t)
	tests := []struct {
		name string
		d    time.Time
		want bool
	}{
		{name: "wednesday", d: day(2025, time.October, 15), want: true},
		{name: "saturday", d: day(2025, time.October, 18), want: false},
		{name: "sunday", d: day(2025, time.October, 19), want: false},
		{name: "good friday", d: day(2025, time.April, 18), want: false},
		{name: "tiradentes", d: day(2025, time.April, 21), want: false},
		{name: "consciencia negra 2025", d: day(2025, time.November, 20), want: false},
		{name: "consciencia negra before law", d: day(2023, time.November, 20), want: true},
		{name: "carnaval not optional by default", d: day(2025, time.March, 4), want: true},
		{name: "non-midnight time", d: time.Date(2025, time.December, 25, 15, 30, 0, 0, time.UTC), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsBusinessDay(tt.d); got != tt.want {
				t.Fatalf("IsBusinessDay(%s) = %v, want %v", tt.d.Format(tarefa.DateLayout), got, tt.want)
			}
		})
	}
}

func TestOptionalAndExtraHolidays(t *testing.T) {
	t.Parallel()
	hs, err := NewHolidaySet(HolidayConfig{Country: "br", Optional: []string{"carnaval"}, Extra: []string{"2025-10-15"}})
	if err != nil {
		t.Fatalf("NewHolidaySet: %v", err)
	}
	c := New(hs)
	for _, d := range []time.Time{day(2025, time.March, 3), day(2025, time.March, 4), day(2025, time.October, 15)} {
		if c.IsBusinessDay(d) {
			t.Fatalf("%s should be a holiday", d.Format(tarefa.DateLayout))
		}
	}
}

func TestNationalHolidayYears(t *testing.T) {
	t.Parallel()
	c := brazil(t, "corpus_christi")
	cases := []struct {
		d       time.Time
		holiday bool
	}{
		{day(2023, time.November, 20), false},
		{day(2024, time.November, 20), true},
		{day(2025, time.April, 18), true},
		{day(2025, time.June, 19), true},
		{day(2025, time.March, 3), false},
	}
	for _, tc := range cases {
		if got := !c.IsBusinessDay(tc.d); got != tc.holiday {
			t.Fatalf("%s: holiday = %v, want %v", tc.d.Format(tarefa.DateLayout), got, tc.holiday)
		}
	}
}

func TestNewHolidaySetErrors(t *testing.T) {
	t.Parallel()
	cases := []HolidayConfig{
		{Country: "XX"},
		{Country: "BR", Optional: []string{"festa junina"}},
		{Country: "none", Optional: []string{"carnaval"}},
		{Country: "BR", Extra: []string{"2025-13-01"}},
	}
	for _, cfg := range cases {
		if _, err := NewHolidaySet(cfg); err == nil {
			t.Fatalf("NewHolidaySet(%+v) expected error", cfg)
		}
	}
}

func TestHolidayList(t *testing.T) {
	t.Parallel()
	hs, err := NewHolidaySet(HolidayConfig{Country: "BR"})
	if err != nil {
		t.Fatalf("NewHolidaySet: %v", err)
	}
	list := hs.List(2025)
	if len(list) != 10 {
		t.Fatalf("expected 10 national holidays in 2025, got %d", len(list))
	}
	if !list[0].Date.Equal(day(2025, time.January, 1)) {
		t.Fatalf("first holiday = %s, want 2025-01-01", list[0].Date.Format(tarefa.DateLayout))
	}
	for i := 1; i < len(list); i++ {
		if list[i].Date.Before(list[i-1].Date) {
			t.Fatalf("list not sorted at %d", i)
		}
	}
}

func TestNextAndPreviousBusinessDay(t *testing.T) {
	t.Parallel()
	c := brazil(t)
	// Saturday -> Monday, Sunday -> Friday.
	if got := c.NextBusinessDay(day(2025, time.October, 18)); !got.Equal(day(2025, time.October, 20)) {
		t.Fatalf("NextBusinessDay(sat) = %s", got.Format(tarefa.DateLayout))
	}
	if got := c.PreviousBusinessDay(day(2025, time.October, 19)); !got.Equal(day(2025, time.October, 17)) {
		t.Fatalf("PreviousBusinessDay(sun) = %s", got.Format(tarefa.DateLayout))
	}
	// Good Friday 2025 -> Monday after Easter is Tiradentes (Apr 21) -> Tuesday.
	if got := c.NextBusinessDay(day(2025, time.April, 18)); !got.Equal(day(2025, time.April, 22)) {
		t.Fatalf("NextBusinessDay(good friday) = %s", got.Format(tarefa.DateLayout))
	}
}

func TestStepBackBusinessDays(t *testing.T) {
	t.Parallel()
	c := brazil(t)
	tests := []struct {
		name string
		from time.Time
		n    int
		want time.Time
	}{
		{name: "zero", from: day(2025, time.October, 17), n: 0, want: day(2025, time.October, 17)},
		{name: "zero on saturday", from: day(2025, time.October, 18), n: 0, want: day(2025, time.October, 17)},
		{name: "zero on holiday", from: day(2025, time.November, 20), n: 0, want: day(2025, time.November, 19)},
		{name: "two from friday", from: day(2025, time.October, 17), n: 2, want: day(2025, time.October, 15)},
		{name: "across weekend", from: day(2025, time.October, 20), n: 1, want: day(2025, time.October, 17)},
		{name: "across holiday", from: day(2025, time.November, 21), n: 1, want: day(2025, time.November, 19)},
		{name: "across month", from: day(2025, time.October, 1), n: 2, want: day(2025, time.September, 29)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := c.StepBackBusinessDays(tt.from, tt.n); !got.Equal(tt.want) {
				t.Fatalf("StepBackBusinessDays(%s, %d) = %s, want %s",
					tt.from.Format(tarefa.DateLayout), tt.n, got.Format(tarefa.DateLayout), tt.want.Format(tarefa.DateLayout))
			}
		})
	}
}

func TestCalendarProperties(t *testing.T) {
	t.Parallel()
	c := brazil(t, "carnaval", "corpus_christi")
	start := day(2024, time.January, 1)
	for i := 0; i < 2*366; i++ {
		d := start.AddDate(0, 0, i)

		next := c.NextBusinessDay(d)
		if !c.IsBusinessDay(next) || next.Before(d) {
			t.Fatalf("NextBusinessDay(%s) = %s violates contract", d.Format(tarefa.DateLayout), next.Format(tarefa.DateLayout))
		}
		prev := c.PreviousBusinessDay(d)
		if !c.IsBusinessDay(prev) || prev.After(d) {
			t.Fatalf("PreviousBusinessDay(%s) = %s violates contract", d.Format(tarefa.DateLayout), prev.Format(tarefa.DateLayout))
		}
		if zero := c.StepBackBusinessDays(d, 0); !c.IsBusinessDay(zero) || zero.After(d) {
			t.Fatalf("StepBackBusinessDays(%s, 0) = %s violates contract", d.Format(tarefa.DateLayout), zero.Format(tarefa.DateLayout))
		}
		for n := 1; n <= 3; n++ {
			back := c.StepBackBusinessDays(d, n)
			if !c.IsBusinessDay(back) || !back.Before(d) {
				t.Fatalf("StepBackBusinessDays(%s, %d) = %s violates contract", d.Format(tarefa.DateLayout), n, back.Format(tarefa.DateLayout))
			}
			if got := c.BusinessDaysBetween(back, d); got != n && c.IsBusinessDay(d) {
				t.Fatalf("BusinessDaysBetween(%s, %s) = %d, want %d", back.Format(tarefa.DateLayout), d.Format(tarefa.DateLayout), got, n)
			}
		}
	}
}

func TestBrokenHolidaySourceIsBounded(t *testing.T) {
	t.Parallel()
	c := New(allHolidays{})
	if got := c.NextBusinessDay(day(2025, time.January, 1)); !got.IsZero() {
		t.Fatalf("expected zero time, got %s", got)
	}
	if got := c.StepBackBusinessDays(day(2025, time.January, 1), 1); !got.IsZero() {
		t.Fatalf("expected zero time, got %s", got)
	}
}

type allHolidays struct{}

func (allHolidays) IsHoliday(time.Time) bool { return true }
