package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"provisioner/internal/tarefa"
)

// Memory is a process-local Store. Versions are monotonically increasing
// per-period counters.
type Memory struct {
	mu      sync.Mutex
	periods map[tarefa.Period]memPeriod
	audit   []AuditEntry
	closed  bool
}

type memPeriod struct {
	recs    []tarefa.Record
	version int
}

func NewMemory() *Memory {
	return &Memory{periods: map[tarefa.Period]memPeriod{}}
}

func (m *Memory) LoadPeriod(ctx context.Context, p tarefa.Period) ([]tarefa.Record, Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, "", ErrClosed
	}
	cur, ok := m.periods[p]
	if !ok {
		return nil, "", nil
	}
	return append([]tarefa.Record(nil), cur.recs...), memVersion(cur.version), nil
}

func (m *Memory) SavePeriod(ctx context.Context, p tarefa.Period, recs []tarefa.Record, expected Version) (Version, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	cur, ok := m.periods[p]
	var actual Version
	if ok {
		actual = memVersion(cur.version)
	}
	if actual != expected {
		return "", &ConflictError{Period: p, Expected: expected, Actual: actual}
	}
	next := memPeriod{recs: append([]tarefa.Record(nil), recs...), version: cur.version + 1}
	m.periods[p] = next
	return memVersion(next.version), nil
}

func (m *Memory) ListPeriods(ctx context.Context) ([]tarefa.Period, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tarefa.Period, 0, len(m.periods))
	for p := range m.periods {
		out = append(out, p)
	}
	sortPeriods(out)
	return out, nil
}

func (m *Memory) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) RecentAudit(_ context.Context, n int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.audit, n), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func memVersion(n int) Version { return Version("v" + strconv.Itoa(n)) }

// newestFirst returns the last n entries of es in reverse order.
func newestFirst(es []AuditEntry, n int) []AuditEntry {
	if n <= 0 || n > len(es) {
		n = len(es)
	}
	out := make([]AuditEntry, 0, n)
	for i := len(es) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, es[i])
	}
	return out
}
