package calendar

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rickar/cal/v2"

	"provisioner/internal/tarefa"
)

// HolidayConfig selects the holiday calendar.
//
//   - Country: "BR" (default) or "none"
//   - Optional: extra observances of the country to treat as holidays
//     (BR: "carnaval", "corpus_christi")
//   - Extra: additional YYYY-MM-DD closures (local holidays, office shutdowns)
type HolidayConfig struct {
	Country  string
	Optional []string
	Extra    []string
}

// Holiday is a resolved holiday on a specific date.
type Holiday struct {
	Date time.Time
	Name string
}

// HolidaySet resolves holidays per year lazily and caches the result.
type HolidaySet struct {
	defs  []*cal.Holiday
	extra map[time.Time]string

	mu     sync.Mutex
	byYear map[int]map[time.Time]string
}

// NewHolidaySet builds the set described by cfg.
func NewHolidaySet(cfg HolidayConfig) (*HolidaySet, error) {
	country := strings.ToUpper(strings.TrimSpace(cfg.Country))
	var defs []*cal.Holiday
	switch country {
	case "", "BR":
		defs = append(defs, brazilPublic...)
		for _, o := range cfg.Optional {
			h, ok := brazilOptional[strings.ToLower(strings.TrimSpace(o))]
			if !ok {
				return nil, fmt.Errorf("holidays: unknown optional observance %q for BR", o)
			}
			defs = append(defs, h...)
		}
	case "NONE":
		if len(cfg.Optional) > 0 {
			return nil, fmt.Errorf("holidays: optional observances need a country")
		}
	default:
		return nil, fmt.Errorf("holidays: unsupported country %q", cfg.Country)
	}

	extra := make(map[time.Time]string, len(cfg.Extra))
	for _, raw := range cfg.Extra {
		d, err := tarefa.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("holidays.extra: %w", err)
		}
		extra[d] = "Extra"
	}

	return &HolidaySet{defs: defs, extra: extra, byYear: map[int]map[time.Time]string{}}, nil
}

func (s *HolidaySet) IsHoliday(d time.Time) bool {
	d = tarefa.Day(d)
	if _, ok := s.extra[d]; ok {
		return true
	}
	_, ok := s.year(d.Year())[d]
	return ok
}

// List returns the year's holidays sorted by date.
func (s *HolidaySet) List(year int) []Holiday {
	out := make([]Holiday, 0, len(s.defs)+len(s.extra))
	for d, name := range s.year(year) {
		out = append(out, Holiday{Date: d, Name: name})
	}
	for d, name := range s.extra {
		if d.Year() == year {
			out = append(out, Holiday{Date: d, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (s *HolidaySet) year(y int) map[time.Time]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byYear[y]; ok {
		return m
	}
	m := make(map[time.Time]string, len(s.defs))
	for _, h := range s.defs {
		actual, _ := h.Calc(y)
		if actual.IsZero() {
			continue
		}
		m[tarefa.Day(actual)] = h.Name
	}
	s.byYear[y] = m
	return m
}
