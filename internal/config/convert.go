package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"provisioner/internal/calendar"
	"provisioner/internal/schedule"
	"provisioner/internal/storage"
	logx "provisioner/pkg/logx"
)

// LogxConfig maps the logging section onto the logger service config.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    c.Logging.Telegram.Enabled,
			MinLevel:   c.Logging.Telegram.MinLevel,
			RatePerSec: c.Logging.Telegram.RatePerSec,
		},
	}
}

// StorageConfig resolves durations and the GitHub token.
func (c *Config) StorageConfig() (storage.Config, error) {
	s := c.Storage
	busy, err := durationField("storage.busy_timeout", s.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	ghTimeout, err := durationField("storage.github.timeout", s.GitHub.Timeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	token := strings.TrimSpace(s.GitHub.Token)
	if token == "" {
		env := s.GitHub.TokenEnv
		if env == "" {
			env = "GITHUB_TOKEN"
		}
		token = strings.TrimSpace(os.Getenv(env))
	}
	path := s.Path
	if path == "" && (s.Driver == "" || s.Driver == "file") {
		path = "data"
	}
	return storage.Config{
		Driver:      s.Driver,
		Path:        path,
		BusyTimeout: busy,
		AuditPath:   s.AuditPath,
		GitHub: storage.GitHubConfig{
			Owner:      s.GitHub.Owner,
			Repo:       s.GitHub.Repo,
			Branch:     s.GitHub.Branch,
			Token:      token,
			Dir:        s.GitHub.Dir,
			BaseURL:    s.GitHub.BaseURL,
			RatePerSec: s.GitHub.RatePerSec,
			Timeout:    ghTimeout,
		},
	}, nil
}

// Policy builds the scheduling policy, filling defaults for zero values.
func (c *Config) Policy() (schedule.Policy, error) {
	p := schedule.DefaultPolicy()
	sc := c.Scheduling
	if sc.Capacity > 0 {
		p.Capacity = sc.Capacity
	}
	if sc.MaxLookbackDays > 0 {
		p.MaxLookback = sc.MaxLookbackDays
	}
	var err error
	if p.Deadline, err = schedule.ParseDeadlinePolicy(sc.DeadlinePolicy); err != nil {
		return schedule.Policy{}, fmt.Errorf("scheduling.deadline_policy: %w", err)
	}
	if p.Month, err = schedule.ParseMonthPolicy(sc.MonthPolicy); err != nil {
		return schedule.Policy{}, fmt.Errorf("scheduling.month_policy: %w", err)
	}
	if p.Precedence, err = schedule.ParsePrecedencePolicy(sc.PrecedencePolicy); err != nil {
		return schedule.Policy{}, fmt.Errorf("scheduling.precedence_policy: %w", err)
	}
	p.AllowPastSlots = sc.AllowPastSlots
	return p, nil
}

// RetryMax returns scheduling.retry_max or its default.
func (c *Config) RetryMax() int {
	if c.Scheduling.RetryMax > 0 {
		return c.Scheduling.RetryMax
	}
	return 3
}

// Location returns the zone that decides "today".
func (c *Config) Location() (*time.Location, error) {
	return loadLocation("scheduling.timezone", c.Scheduling.Timezone)
}

// AgendaLocation returns the agenda zone, falling back to scheduling.timezone.
func (c *Config) AgendaLocation() (*time.Location, error) {
	if strings.TrimSpace(c.Agenda.Timezone) == "" {
		return c.Location()
	}
	return loadLocation("agenda.timezone", c.Agenda.Timezone)
}

func loadLocation(path, name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return loc, nil
}

// HolidaySet builds the configured holiday calendar.
func (c *Config) HolidaySet() (*calendar.HolidaySet, error) {
	hs, err := calendar.NewHolidaySet(calendar.HolidayConfig{
		Country:  c.Holidays.Country,
		Optional: c.Holidays.Optional,
		Extra:    c.Holidays.Extra,
	})
	if err != nil {
		return nil, fmt.Errorf("holidays: %w", err)
	}
	return hs, nil
}
