package provision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"provisioner/internal/schedule"
	"provisioner/internal/storage"
	"provisioner/internal/tarefa"
	logx "provisioner/pkg/logx"
)

// ID numbering scopes.
const (
	ScopeGlobal  = "global"
	ScopeProject = "project"
)

// Settings are the hot-reloadable parts of the service.
type Settings struct {
	Calendar schedule.BusinessCalendar
	Policy   schedule.Policy
	RetryMax int
	IDScope  string
	Location *time.Location // decides "today"; nil means time.Local
}

type Service struct {
	store storage.Store
	log   logx.Logger
	now   func() time.Time

	mu  sync.RWMutex
	set Settings
}

// New builds a service. now may be nil.
func New(store storage.Store, set Settings, log logx.Logger, now func() time.Time) (*Service, error) {
	if store == nil {
		return nil, errors.New("provision: store is required")
	}
	if now == nil {
		now = time.Now
	}
	s := &Service{store: store, log: log, now: now}
	if err := s.Reconfigure(set); err != nil {
		return nil, err
	}
	return s, nil
}

// Reconfigure swaps calendar, policy and limits. In-flight operations keep the
// settings they started with.
func (s *Service) Reconfigure(set Settings) error {
	if set.Calendar == nil {
		return errors.New("provision: calendar is required")
	}
	if set.Policy.Capacity <= 0 {
		set.Policy.Capacity = schedule.DefaultCapacity
	}
	if set.Policy.MaxLookback <= 0 {
		set.Policy.MaxLookback = schedule.DefaultMaxLookback
	}
	if set.RetryMax <= 0 {
		set.RetryMax = 3
	}
	switch set.IDScope {
	case "":
		set.IDScope = ScopeGlobal
	case ScopeGlobal, ScopeProject:
	default:
		return fmt.Errorf("provision: unknown id scope %q", set.IDScope)
	}
	if set.Location == nil {
		set.Location = time.Local
	}
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
	return nil
}

func (s *Service) settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Today is the current date in the configured zone.
func (s *Service) Today() time.Time {
	return tarefa.Day(s.now().In(s.settings().Location))
}

func (s *Service) planner(set Settings) schedule.Planner {
	loc := set.Location
	return schedule.Planner{
		Calendar: set.Calendar,
		Policy:   set.Policy,
		Now:      func() time.Time { return s.now().In(loc) },
	}
}

// DefaultDeadline is today when it is a business day, else the next one.
func (s *Service) DefaultDeadline() time.Time {
	return s.settings().Calendar.NextBusinessDay(s.Today())
}

// TaskInput carries the user-editable fields of a task.
type TaskInput struct {
	Project     string
	Title       string
	Description string
	Kinds       []tarefa.Kind
	Deadline    time.Time
	Actor       string
}

func (in TaskInput) validate() error {
	if err := tarefa.ValidateProject(in.Project); err != nil {
		return err
	}
	if strings.TrimSpace(in.Title) == "" {
		return &tarefa.ValidationError{Reason: tarefa.ReasonMissingTitle}
	}
	return tarefa.ValidateKinds(in.Kinds)
}

// Result describes a committed (or, for Plan, computed) schedule.
type Result struct {
	ReqID    string
	TaskID   tarefa.TaskID
	Period   tarefa.Period
	Plan     schedule.Plan
	Records  []tarefa.Record
	Version  storage.Version
	Attempts int
	// Removed lists other periods the task's old records were removed from.
	Removed []tarefa.Period
}

func newReqID() string { return uuid.NewString() }

// Plan computes the schedule a registration would get, without writing.
func (s *Service) Plan(ctx context.Context, in TaskInput) (*Result, error) {
	reqID := newReqID()
	set := s.settings()
	pl := s.planner(set)
	if err := tarefa.ValidateProject(in.Project); err != nil {
		return nil, err
	}
	if err := tarefa.ValidateKinds(in.Kinds); err != nil {
		return nil, err
	}
	deadline, err := pl.ResolveDeadline(in.Deadline)
	if err != nil {
		return nil, err
	}
	period := tarefa.PeriodOf(in.Project, deadline)
	recs, _, err := s.store.LoadPeriod(ctx, period)
	if err != nil {
		s.log.Error("load period failed", logx.String("req_id", reqID), logx.String("period", period.String()), logx.Err(err))
		return nil, err
	}
	plan, err := pl.Plan(deadline, in.Kinds, recs)
	if err != nil {
		return nil, err
	}
	return &Result{ReqID: reqID, Period: period, Plan: plan, Records: plan.Records("", in.Title, in.Description, s.Today())}, nil
}

// Register allocates a task id and files its subtasks under the deadline's period.
func (s *Service) Register(ctx context.Context, in TaskInput) (*Result, error) {
	reqID := newReqID()
	log := s.log.With(logx.String("req_id", reqID), logx.String("op", "register"))
	res, err := s.register(ctx, reqID, in, log)
	s.audit(ctx, "register", reqID, "", in, res, err, log)
	return res, err
}

func (s *Service) register(ctx context.Context, reqID string, in TaskInput, log logx.Logger) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	set := s.settings()
	pl := s.planner(set)
	deadline, err := pl.ResolveDeadline(in.Deadline)
	if err != nil {
		return nil, err
	}
	period := tarefa.PeriodOf(in.Project, deadline)

	var lastErr error
	for attempt := 1; attempt <= set.RetryMax; attempt++ {
		id, err := s.nextID(ctx, in.Project, set.IDScope)
		if err != nil {
			return nil, err
		}
		recs, ver, err := s.store.LoadPeriod(ctx, period)
		if err != nil {
			return nil, err
		}
		plan, err := pl.Plan(deadline, in.Kinds, recs)
		if err != nil {
			return nil, err
		}
		created := plan.Records(id, strings.TrimSpace(in.Title), in.Description, s.Today())
		next := append(append(make([]tarefa.Record, 0, len(recs)+len(created)), recs...), created...)

		v, err := s.store.SavePeriod(ctx, period, next, ver)
		if storage.IsConflict(err) {
			lastErr = err
			log.Warn("period changed concurrently; retrying", logx.String("period", period.String()), logx.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info("task registered",
			logx.String("task_id", string(id)),
			logx.String("period", period.String()),
			logx.Strs("dates", slotDates(plan)),
			logx.Int("attempt", attempt),
		)
		return &Result{ReqID: reqID, TaskID: id, Period: period, Plan: plan, Records: created, Version: v, Attempts: attempt}, nil
	}
	return nil, fmt.Errorf("register: gave up after %d attempts: %w", set.RetryMax, lastErr)
}

// EditInput replaces every record of TaskID.
type EditInput struct {
	TaskInput
	TaskID tarefa.TaskID
}

// Edit replaces the task's records with a fresh plan for the new deadline.
//
// The task's old records never count against capacity. When the new deadline
// lands in another period, the new period is written first and the old
// records are removed afterwards, so a failure in between leaves the task
// duplicated rather than lost.
func (s *Service) Edit(ctx context.Context, in EditInput) (*Result, error) {
	reqID := newReqID()
	log := s.log.With(logx.String("req_id", reqID), logx.String("op", "edit"), logx.String("task_id", string(in.TaskID)))
	// res is non-nil with an error when the new period was written but an old
	// one could not be cleaned up.
	res, err := s.edit(ctx, reqID, in, log)
	s.audit(ctx, "edit", reqID, in.TaskID, in.TaskInput, res, err, log)
	return res, err
}

func (s *Service) edit(ctx context.Context, reqID string, in EditInput, log logx.Logger) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	set := s.settings()
	pl := s.planner(set)
	deadline, err := pl.ResolveDeadline(in.Deadline)
	if err != nil {
		return nil, err
	}
	target := tarefa.PeriodOf(in.Project, deadline)

	found, err := s.taskPeriods(ctx, in.Project, in.TaskID)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, &tarefa.ValidationError{Reason: tarefa.ReasonTaskNotFound, Detail: string(in.TaskID)}
	}

	var (
		res     *Result
		lastErr error
	)
	for attempt := 1; attempt <= set.RetryMax && res == nil; attempt++ {
		recs, ver, err := s.store.LoadPeriod(ctx, target)
		if err != nil {
			return nil, err
		}
		_, rest := tarefa.FilterTask(recs, in.TaskID)
		plan, err := pl.Plan(deadline, in.Kinds, rest)
		if err != nil {
			return nil, err
		}
		created := plan.Records(in.TaskID, strings.TrimSpace(in.Title), in.Description, s.Today())
		v, err := s.store.SavePeriod(ctx, target, append(rest, created...), ver)
		if storage.IsConflict(err) {
			lastErr = err
			log.Warn("period changed concurrently; retrying", logx.String("period", target.String()), logx.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		res = &Result{ReqID: reqID, TaskID: in.TaskID, Period: target, Plan: plan, Records: created, Version: v, Attempts: attempt}
	}
	if res == nil {
		return nil, fmt.Errorf("edit: gave up after %d attempts: %w", set.RetryMax, lastErr)
	}

	for _, p := range found {
		if p == target {
			continue
		}
		if err := s.removeTask(ctx, p, in.TaskID, set.RetryMax); err != nil {
			log.Error("old period cleanup failed; task now appears twice",
				logx.String("period", p.String()), logx.Err(err))
			return res, fmt.Errorf("edit: task written to %s but not removed from %s: %w", target, p, err)
		}
		res.Removed = append(res.Removed, p)
	}
	log.Info("task edited",
		logx.String("period", target.String()),
		logx.Strs("dates", slotDates(res.Plan)),
		logx.Int("moved_from", len(res.Removed)),
	)
	return res, nil
}

// removeTask deletes id's records from p, retrying on conflicts.
func (s *Service) removeTask(ctx context.Context, p tarefa.Period, id tarefa.TaskID, retryMax int) error {
	var lastErr error
	for attempt := 1; attempt <= retryMax; attempt++ {
		recs, ver, err := s.store.LoadPeriod(ctx, p)
		if err != nil {
			return err
		}
		task, rest := tarefa.FilterTask(recs, id)
		if len(task) == 0 {
			return nil
		}
		_, err = s.store.SavePeriod(ctx, p, rest, ver)
		if storage.IsConflict(err) {
			lastErr = err
			continue
		}
		return err
	}
	return lastErr
}

func (s *Service) audit(ctx context.Context, action, reqID string, id tarefa.TaskID, in TaskInput, res *Result, opErr error, log logx.Logger) {
	e := storage.AuditEntry{
		At:     s.now(),
		ReqID:  reqID,
		Actor:  in.Actor,
		Action: action,
		TaskID: string(id),
		OK:     opErr == nil,
		Detail: strings.TrimSpace(in.Title),
	}
	if res != nil {
		e.TaskID = string(res.TaskID)
		e.Period = res.Period.String()
		e.Detail = fmt.Sprintf("%s: %s", e.Detail, strings.Join(slotDates(res.Plan), ", "))
	}
	if opErr != nil {
		e.Error = opErr.Error()
		switch {
		case errors.Is(opErr, tarefa.ErrValidation), errors.Is(opErr, tarefa.ErrScheduling):
			log.Info(action+" rejected", logx.Err(opErr))
		default:
			log.Error(action+" failed", logx.Err(opErr))
		}
	}
	if err := s.store.AppendAudit(ctx, e); err != nil {
		log.Warn("audit append failed", logx.Err(err))
	}
}

func slotDates(p schedule.Plan) []string {
	out := make([]string, 0, len(p.Slots))
	for _, sl := range p.Slots {
		out = append(out, sl.Kind.String()+"="+tarefa.FormatDate(sl.Date))
	}
	return out
}

// sortRecords orders by delivery date, then task id, then precedence.
func sortRecords(recs []tarefa.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.DeliveryDate.Equal(b.DeliveryDate) {
			return a.DeliveryDate.Before(b.DeliveryDate)
		}
		if a.TaskID != b.TaskID {
			ai, aok := a.TaskID.Int()
			bi, bok := b.TaskID.Int()
			if aok && bok {
				return ai < bi
			}
			return a.TaskID < b.TaskID
		}
		return a.Kind.Precedence() < b.Kind.Precedence()
	})
}
