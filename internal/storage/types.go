package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"provisioner/internal/tarefa"
)

var (
	// ErrConcurrentModification means the stored document changed since it was
	// loaded. Callers should reload, recompute and retry.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrUnavailable covers transport, auth and decoding failures.
	ErrUnavailable = errors.New("store unavailable")
	// ErrInvalidDocument is wrapped (together with ErrUnavailable) when a stored
	// period document cannot be decoded.
	ErrInvalidDocument = errors.New("invalid period document")
	ErrClosed          = errors.New("store closed")
	// ErrOutsideRoot rejects a period whose project would resolve outside the
	// store's root directory.
	ErrOutsideRoot = errors.New("period path outside store root")
)

// Version is an opaque document version token. The empty Version means
// "no document stored yet".
type Version string

// ConflictError reports a stale expected version.
type ConflictError struct {
	Period   tarefa.Period
	Expected Version
	Actual   Version // may be empty when the backend does not report it
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("period %s: version %q is stale (current %q)", e.Period, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrentModification }

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConcurrentModification) }

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// PeriodStore is the record store contract.
type PeriodStore interface {
	// LoadPeriod returns the period's records and version; an empty list and
	// empty version if nothing is stored.
	LoadPeriod(ctx context.Context, p tarefa.Period) ([]tarefa.Record, Version, error)
	// SavePeriod replaces the whole period document if expected is current.
	SavePeriod(ctx context.Context, p tarefa.Period, recs []tarefa.Record, expected Version) (Version, error)
	// ListPeriods enumerates every period with a stored document, sorted.
	ListPeriods(ctx context.Context) ([]tarefa.Period, error)
}

// AuditEntry records one provisioning operation.
type AuditEntry struct {
	At     time.Time `json:"at"`
	ReqID  string    `json:"req_id"`
	Actor  string    `json:"actor,omitempty"`
	Action string    `json:"action"`
	TaskID string    `json:"task_id,omitempty"`
	Period string    `json:"period,omitempty"`
	OK     bool      `json:"ok"`
	Error  string    `json:"err,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// AuditLog is an append-only operation log.
type AuditLog interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// RecentAudit returns up to n entries, newest first.
	RecentAudit(ctx context.Context, n int) ([]AuditEntry, error)
}

// Store is what Open returns.
type Store interface {
	PeriodStore
	AuditLog
	Close() error
}

// Config configures storage.
//
// Driver values: "memory", "file", "github", "sqlite".
type Config struct {
	Driver string

	// file: directory holding the period documents.
	// sqlite: database file.
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// AuditPath is the JSON Lines audit log used by the github driver.
	// Empty keeps the audit log in memory.
	AuditPath string

	GitHub GitHubConfig
}

// GitHubConfig addresses the repository holding the period documents.
type GitHubConfig struct {
	Owner      string
	Repo       string
	Branch     string
	Token      string
	Dir        string        // default "data"
	BaseURL    string        // default https://api.github.com
	RatePerSec float64       // request rate limit; <= 0 means 5/s
	Timeout    time.Duration // per request; 0 means 15s
}
