package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// jsonlAudit is an append-only JSON Lines audit log.
type jsonlAudit struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func openJSONLAudit(path string) (*jsonlAudit, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &jsonlAudit{path: path, f: f}, nil
}

func (a *jsonlAudit) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(a.f).Encode(e)
}

// RecentAudit scans the whole file keeping a ring of the last n entries.
// Malformed lines are skipped.
func (a *jsonlAudit) RecentAudit(_ context.Context, n int) ([]AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.Open(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e AuditEntry
		if json.Unmarshal(sc.Bytes(), &e) != nil {
			continue
		}
		all = append(all, e)
		if n > 0 && len(all) > 2*n {
			all = append(all[:0], all[len(all)-n:]...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return newestFirst(all, n), nil
}

func (a *jsonlAudit) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}
