package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"provisioner/internal/tarefa"
)

// Config is the root configuration document.
//
// Files may be JSON, YAML or TOML; all are decoded strictly (unknown keys are
// rejected) through the same JSON shape.
type Config struct {
	// Project is the default project scope for commands that don't name one.
	// Empty means the unscoped data/ layout.
	Project string `json:"project,omitempty"`

	Logging    LoggingConfig    `json:"logging"`
	Telegram   TelegramConfig   `json:"telegram"`
	Storage    StorageConfig    `json:"storage"`
	Scheduling SchedulingConfig `json:"scheduling"`
	Holidays   HolidaysConfig   `json:"holidays"`
	IDs        IDsConfig        `json:"ids"`
	Agenda     AgendaConfig     `json:"agenda"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id receiving log lines and the daily agenda.
	GroupLog string `json:"group_log"`
	// PollTimeout is a duration such as "10s" or "2m", or bare seconds.
	PollTimeout string `json:"poll_timeout"`
}

// StorageConfig selects the record store.
//
// Example:
//
//	"storage": { "driver": "github", "github": { "owner": "acme", "repo": "pauta" } }
type StorageConfig struct {
	Driver      string       `json:"driver"`
	Path        string       `json:"path"`
	BusyTimeout string       `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	AuditPath   string       `json:"audit_path,omitempty"`
	GitHub      GitHubConfig `json:"github"`
}

// GitHubConfig addresses the repository that holds the period documents.
// The token is read from TokenEnv (default GITHUB_TOKEN) when Token is empty.
type GitHubConfig struct {
	Owner      string  `json:"owner,omitempty"`
	Repo       string  `json:"repo,omitempty"`
	Branch     string  `json:"branch,omitempty"`
	Dir        string  `json:"dir,omitempty"`
	Token      string  `json:"token,omitempty"`
	TokenEnv   string  `json:"token_env,omitempty"`
	BaseURL    string  `json:"base_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
}

// SchedulingConfig controls slot allocation.
//
// Defaults (when fields are omitted/zero):
//   - capacity: 5
//   - max_lookback_days: 60
//   - deadline_policy: "reject"
//   - month_policy: "reject"
//   - precedence_policy: "clamp"
//   - retry_max: 3
type SchedulingConfig struct {
	Capacity        int    `json:"capacity,omitempty"`
	MaxLookbackDays int    `json:"max_lookback_days,omitempty"`
	DeadlinePolicy  string `json:"deadline_policy,omitempty"`
	MonthPolicy     string `json:"month_policy,omitempty"`
	// PrecedencePolicy is "clamp" or "independent".
	PrecedencePolicy string `json:"precedence_policy,omitempty"`
	AllowPastSlots   bool   `json:"allow_past_slots,omitempty"`
	RetryMax         int    `json:"retry_max,omitempty"`
	// Timezone decides what "today" is. Defaults to the process local zone.
	Timezone string `json:"timezone,omitempty"`
}

// HolidaysConfig selects the holiday calendar.
// Country "BR" (default) or "NONE"; Optional names observances such as
// "carnaval" or "corpus_christi"; Extra lists YYYY-MM-DD dates.
type HolidaysConfig struct {
	Country  string   `json:"country,omitempty"`
	Optional []string `json:"optional,omitempty"`
	Extra    []string `json:"extra,omitempty"`
}

// IDsConfig controls task id numbering: "global" (default) scans every period,
// "project" only the periods of the task's project.
type IDsConfig struct {
	Scope string `json:"scope,omitempty"`
}

// AgendaConfig controls the daily delivery digest.
type AgendaConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron spec (seconds optional) or descriptor such as "@daily".
	Schedule      string `json:"schedule,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
	LookaheadDays int    `json:"lookahead_days,omitempty"`
}

const (
	IDScopeGlobal  = "global"
	IDScopeProject = "project"
)

// DefaultPollTimeout applies when telegram.poll_timeout is empty or zero.
const DefaultPollTimeout = 10 * time.Second

// Validate checks the fields that can be checked without building components.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if c.Scheduling.Capacity < 0 {
		errs = append(errs, errors.New("scheduling.capacity must be >= 0"))
	}
	if c.Scheduling.MaxLookbackDays < 0 {
		errs = append(errs, errors.New("scheduling.max_lookback_days must be >= 0"))
	}
	if c.Scheduling.RetryMax < 0 {
		errs = append(errs, errors.New("scheduling.retry_max must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(c.IDs.Scope)) {
	case "", IDScopeGlobal, IDScopeProject:
	default:
		errs = append(errs, fmt.Errorf("ids.scope: unknown scope %q", c.IDs.Scope))
	}
	if err := tarefa.ValidateProject(c.Project); err != nil {
		errs = append(errs, fmt.Errorf("project: invalid name %q", c.Project))
	}
	if c.Agenda.LookaheadDays < 0 {
		errs = append(errs, errors.New("agenda.lookahead_days must be >= 0"))
	}
	if c.Telegram.Enabled && strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required when telegram.enabled"))
	}
	for _, f := range c.durationFields() {
		if _, err := durationField(f.path, f.raw, f.def); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IDScope returns the normalized id scope.
func (c *Config) IDScope() string {
	if strings.EqualFold(strings.TrimSpace(c.IDs.Scope), IDScopeProject) {
		return IDScopeProject
	}
	return IDScopeGlobal
}
