// Package agenda sends a periodic digest of upcoming subtask deliveries.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"provisioner/internal/tarefa"
	logx "provisioner/pkg/logx"
)

// Source is the read side of the provisioning service.
type Source interface {
	Today() time.Time
	AddBusinessDays(d time.Time, n int) time.Time
	Upcoming(ctx context.Context, project string, from, to time.Time) ([]tarefa.Record, error)
}

// Sender delivers a rendered digest.
type Sender func(ctx context.Context, text string) error

type Config struct {
	Enabled bool
	// Schedule is a cron spec with optional seconds, or a descriptor ("@daily").
	Schedule      string
	Location      *time.Location
	LookaheadDays int
	Project       string
}

const (
	DefaultSchedule  = "0 8 * * 1-5"
	DefaultLookahead = 3
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a cron spec.
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty schedule")
	}
	return parser.Parse(spec)
}

type Service struct {
	src  Source
	send Sender
	log  logx.Logger

	mu  sync.Mutex
	cfg Config
	c   *cron.Cron
}

func New(src Source, send Sender, log logx.Logger) *Service {
	return &Service{src: src, send: send, log: log}
}

// Apply (re)starts triggering with cfg. A disabled config stops the cron.
func (s *Service) Apply(cfg Config) error {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = DefaultLookahead
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if _, err := ParseSchedule(cfg.Schedule); err != nil {
		return fmt.Errorf("agenda.schedule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	s.cfg = cfg
	if !cfg.Enabled {
		s.log.Debug("agenda disabled")
		return nil
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(cfg.Location))
	if _, err := c.AddFunc(cfg.Schedule, s.tick); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("agenda scheduled", logx.String("schedule", cfg.Schedule), logx.String("tz", cfg.Location.String()), logx.Int("lookahead_days", cfg.LookaheadDays))
	return nil
}

// Stop stops triggering; a running digest is waited for until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Service) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.RunOnce(ctx); err != nil {
		s.log.Warn("agenda run failed", logx.Err(err))
	}
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// RunOnce builds and sends the digest now.
func (s *Service) RunOnce(ctx context.Context) error {
	cfg := s.config()
	d, err := s.Build(ctx, cfg.Project, cfg.LookaheadDays)
	if err != nil {
		return err
	}
	if s.send == nil {
		return errors.New("agenda: no sender")
	}
	return s.send(ctx, Render(d))
}

// Item is one upcoming delivery.
type Item struct {
	Record   tarefa.Record
	Relative string
}

type Digest struct {
	Project string
	From    time.Time
	Until   time.Time
	Items   []Item
}

// Build lists deliveries from today through lookahead business days ahead.
func (s *Service) Build(ctx context.Context, project string, lookahead int) (Digest, error) {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	today := s.src.Today()
	until := s.src.AddBusinessDays(today, lookahead)
	recs, err := s.src.Upcoming(ctx, project, today, until)
	if err != nil {
		return Digest{}, err
	}
	d := Digest{Project: project, From: today, Until: until}
	for _, r := range recs {
		d.Items = append(d.Items, Item{Record: r, Relative: Relative(r.DeliveryDate, today)})
	}
	return d, nil
}

// Relative phrases a delivery date relative to today ("today", "2 days from now").
func Relative(due, today time.Time) string {
	due, today = tarefa.Day(due), tarefa.Day(today)
	switch {
	case due.Equal(today):
		return "today"
	case due.Equal(today.AddDate(0, 0, 1)):
		return "tomorrow"
	}
	return humanize.RelTime(due, today, "ago", "from now")
}

// Render formats a digest as plain text.
func Render(d Digest) string {
	var b strings.Builder
	title := "Agenda"
	if d.Project != "" {
		title += " [" + d.Project + "]"
	}
	fmt.Fprintf(&b, "%s %s .. %s\n", title, tarefa.FormatDate(d.From), tarefa.FormatDate(d.Until))
	if len(d.Items) == 0 {
		b.WriteString("Nothing due.")
		return b.String()
	}
	var last time.Time
	for _, it := range d.Items {
		r := it.Record
		if !r.DeliveryDate.Equal(last) {
			fmt.Fprintf(&b, "\n%s (%s)\n", tarefa.FormatDate(r.DeliveryDate), it.Relative)
			last = r.DeliveryDate
		}
		fmt.Fprintf(&b, "  #%s %s: %s", r.TaskID, r.Kind.Label(), r.TaskTitle)
		if r.Status == tarefa.StatusDone {
			b.WriteString(" (done)")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
