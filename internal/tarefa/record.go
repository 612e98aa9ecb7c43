package tarefa

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the on-disk and user-facing date format.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar date at midnight UTC. All dates in records,
// periods and the calendar are normalized with Day so they compare with ==.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &ValidationError{Reason: ReasonInvalidDate, Detail: s}
	}
	return Day(t), nil
}

// FormatDate formats a date as YYYY-MM-DD.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// TaskID identifies a task. It is stored as text; only all-digit ids take part
// in numbering (foreign ids are kept verbatim but ignored by the allocator).
type TaskID string

func NewTaskID(n int) TaskID { return TaskID(strconv.Itoa(n)) }

// Int returns the numeric value of an all-digit id.
func (id TaskID) Int() (int, bool) {
	s := string(id)
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

type Status string

const (
	StatusPending Status = "Pending"
	StatusDone    Status = "Done"
)

// ParseStatus accepts "", "pending" and "done" (case-insensitive).
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "pending", "pendente":
		return StatusPending, nil
	case "done", "concluido", "concluído":
		return StatusDone, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Record is one subtask of a task.
type Record struct {
	TaskID       TaskID
	TaskTitle    string
	Kind         Kind
	Description  string
	RegisteredOn time.Time
	DeliveryDate time.Time
	Status       Status
}

// SubtaskTitle is the derived per-subtask title, e.g. "Layout_Newsletter".
func (r Record) SubtaskTitle() string { return r.Kind.String() + "_" + r.TaskTitle }

// Period is the (project, year, month) partition records are filed under.
// Project is empty for the default, unscoped partition.
type Period struct {
	Project string
	Year    int
	Month   time.Month
}

// PeriodOf returns the period a delivery date belongs to.
func PeriodOf(project string, d time.Time) Period {
	return Period{Project: project, Year: d.Year(), Month: d.Month()}
}

// Contains reports whether d falls inside the period's month.
func (p Period) Contains(d time.Time) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

// Before orders periods by project, then chronologically.
func (p Period) Before(o Period) bool {
	if p.Project != o.Project {
		return p.Project < o.Project
	}
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// ValidateProject accepts "" (default project) or slash-separated segments
// that stay below the storage root: no "." or "..", no empty segments, no
// leading slash, no backslash or colon.
func ValidateProject(project string) error {
	if project == "" {
		return nil
	}
	bad := func() error {
		return &ValidationError{Reason: ReasonInvalidProject, Detail: project}
	}
	if strings.ContainsAny(project, `\:`) {
		return bad()
	}
	for _, seg := range strings.Split(project, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.TrimSpace(seg) != seg {
			return bad()
		}
	}
	return nil
}

// String renders "2025-03" or "acme/2025-03".
func (p Period) String() string {
	s := fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
	if p.Project != "" {
		return p.Project + "/" + s
	}
	return s
}

// ParsePeriod parses the String form. A bare "2025-03" yields project "".
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	var p Period
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		p.Project = s[:i]
		s = s[i+1:]
		if err := ValidateProject(p.Project); err != nil {
			return Period{}, err
		}
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q (want YYYY-MM)", s)
	}
	p.Year, p.Month = t.Year(), t.Month()
	return p, nil
}

// FilterTask returns the records of id and the remaining records.
func FilterTask(recs []Record, id TaskID) (task, rest []Record) {
	rest = make([]Record, 0, len(recs))
	for _, r := range recs {
		if r.TaskID == id {
			task = append(task, r)
			continue
		}
		rest = append(rest, r)
	}
	return task, rest
}

// CountOn counts records of kind k delivering on day d.
func CountOn(recs []Record, d time.Time, k Kind) int {
	n := 0
	for _, r := range recs {
		if r.Kind == k && r.DeliveryDate.Equal(d) {
			n++
		}
	}
	return n
}
