package provision

import (
	"context"
	"time"

	"provisioner/internal/schedule"
	"provisioner/internal/storage"
	"provisioner/internal/tarefa"
)

// NextID returns max(numeric task ids) + 1 over the periods in scope, or 1.
// Non-numeric ids are ignored. Two concurrent callers may get the same id.
func (s *Service) NextID(ctx context.Context, project string) (tarefa.TaskID, error) {
	return s.nextID(ctx, project, s.settings().IDScope)
}

func (s *Service) nextID(ctx context.Context, project, scope string) (tarefa.TaskID, error) {
	periods, err := s.scopedPeriods(ctx, project, scope)
	if err != nil {
		return "", err
	}
	maxID := 0
	for _, p := range periods {
		recs, _, err := s.store.LoadPeriod(ctx, p)
		if err != nil {
			return "", err
		}
		for _, r := range recs {
			if n, ok := r.TaskID.Int(); ok && n > maxID {
				maxID = n
			}
		}
	}
	return tarefa.NewTaskID(maxID + 1), nil
}

func (s *Service) scopedPeriods(ctx context.Context, project, scope string) ([]tarefa.Period, error) {
	if err := tarefa.ValidateProject(project); err != nil {
		return nil, err
	}
	all, err := s.store.ListPeriods(ctx)
	if err != nil {
		return nil, err
	}
	if scope == ScopeGlobal {
		return all, nil
	}
	out := all[:0:0]
	for _, p := range all {
		if p.Project == project {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListPeriods returns the project's stored periods in ascending order.
func (s *Service) ListPeriods(ctx context.Context, project string) ([]tarefa.Period, error) {
	return s.scopedPeriods(ctx, project, ScopeProject)
}

// AllPeriods returns every stored period across projects.
func (s *Service) AllPeriods(ctx context.Context) ([]tarefa.Period, error) {
	return s.store.ListPeriods(ctx)
}

// ListPeriod returns a period's records ordered by delivery date.
func (s *Service) ListPeriod(ctx context.Context, p tarefa.Period) ([]tarefa.Record, error) {
	if err := tarefa.ValidateProject(p.Project); err != nil {
		return nil, err
	}
	recs, _, err := s.store.LoadPeriod(ctx, p)
	if err != nil {
		return nil, err
	}
	sortRecords(recs)
	return recs, nil
}

// Task is the current state of a task, assembled from its records.
type Task struct {
	ID           tarefa.TaskID
	Title        string
	Description  string
	Kinds        []tarefa.Kind
	Deadline     time.Time // latest delivery date
	RegisteredOn time.Time
	Records      []tarefa.Record
	Periods      []tarefa.Period
}

// FindTask looks a task up in the project's periods.
func (s *Service) FindTask(ctx context.Context, project string, id tarefa.TaskID) (*Task, error) {
	periods, err := s.ListPeriods(ctx, project)
	if err != nil {
		return nil, err
	}
	var t *Task
	for _, p := range periods {
		recs, _, err := s.store.LoadPeriod(ctx, p)
		if err != nil {
			return nil, err
		}
		own, _ := tarefa.FilterTask(recs, id)
		if len(own) == 0 {
			continue
		}
		if t == nil {
			t = &Task{ID: id}
		}
		t.Periods = append(t.Periods, p)
		t.Records = append(t.Records, own...)
	}
	if t == nil {
		return nil, &tarefa.ValidationError{Reason: tarefa.ReasonTaskNotFound, Detail: string(id)}
	}
	sortRecords(t.Records)
	seen := map[tarefa.Kind]bool{}
	for _, r := range t.Records {
		t.Title, t.Description = r.TaskTitle, r.Description
		if r.DeliveryDate.After(t.Deadline) {
			t.Deadline = r.DeliveryDate
		}
		if t.RegisteredOn.IsZero() || r.RegisteredOn.Before(t.RegisteredOn) {
			t.RegisteredOn = r.RegisteredOn
		}
		if !seen[r.Kind] {
			seen[r.Kind] = true
			t.Kinds = append(t.Kinds, r.Kind)
		}
	}
	t.Kinds = tarefa.SortKinds(t.Kinds)
	return t, nil
}

// taskPeriods returns the project's periods holding records of id.
func (s *Service) taskPeriods(ctx context.Context, project string, id tarefa.TaskID) ([]tarefa.Period, error) {
	t, err := s.FindTask(ctx, project, id)
	if tarefa.IsValidation(err, tarefa.ReasonTaskNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.Periods, nil
}

// Upcoming returns the project's records delivering in [from, to], ordered.
// When tasks may cross a month boundary their records are filed under the
// deadline's period, so periods past to are read as far as the lookback reaches.
func (s *Service) Upcoming(ctx context.Context, project string, from, to time.Time) ([]tarefa.Record, error) {
	if err := tarefa.ValidateProject(project); err != nil {
		return nil, err
	}
	from, to = tarefa.Day(from), tarefa.Day(to)
	last := tarefa.PeriodOf(project, to)
	if pol := s.settings().Policy; pol.Month == schedule.MonthAllow {
		last = tarefa.PeriodOf(project, to.AddDate(0, 0, pol.MaxLookback+14))
	}
	var out []tarefa.Record
	for p := tarefa.PeriodOf(project, from); !last.Before(p); p = nextPeriod(p) {
		recs, _, err := s.store.LoadPeriod(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if !r.DeliveryDate.Before(from) && !r.DeliveryDate.After(to) {
				out = append(out, r)
			}
		}
	}
	sortRecords(out)
	return out, nil
}

func nextPeriod(p tarefa.Period) tarefa.Period {
	if p.Month == time.December {
		return tarefa.Period{Project: p.Project, Year: p.Year + 1, Month: time.January}
	}
	return tarefa.Period{Project: p.Project, Year: p.Year, Month: p.Month + 1}
}

// RecentLog returns up to n audit entries, newest first.
func (s *Service) RecentLog(ctx context.Context, n int) ([]storage.AuditEntry, error) {
	return s.store.RecentAudit(ctx, n)
}

// AddBusinessDays walks n business days forward from d (n <= 0 returns the
// first business day on or after d).
func (s *Service) AddBusinessDays(d time.Time, n int) time.Time {
	cal := s.settings().Calendar
	d = cal.NextBusinessDay(tarefa.Day(d))
	for i := 0; i < n; i++ {
		d = cal.NextBusinessDay(d.AddDate(0, 0, 1))
	}
	return d
}
