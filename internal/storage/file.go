package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"provisioner/internal/tarefa"
	logx "provisioner/pkg/logx"
)

// fileStore keeps one JSON document per period.
//
// Files:
//   - <root>/tarefas_YYYY_MM.json            (default project)
//   - <root>/<project>/tarefas_YYYY_MM.json  (scoped projects)
//   - <root>/audit.jsonl                     (append-only JSON Lines)
//
// Documents are replaced atomically (tmp + rename). The version check is
// serialized within the process only.
type fileStore struct {
	root  string
	log   logx.Logger
	mu    sync.Mutex
	audit *jsonlAudit
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	root := strings.TrimSpace(cfg.Path)
	if root == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	auditPath := strings.TrimSpace(cfg.AuditPath)
	if auditPath == "" {
		auditPath = filepath.Join(root, "audit.jsonl")
	}
	a, err := openJSONLAudit(auditPath)
	if err != nil {
		return nil, err
	}
	return &fileStore{root: root, log: log, audit: a}, nil
}

func (s *fileStore) periodPath(p tarefa.Period) (string, error) {
	if err := tarefa.ValidateProject(p.Project); err != nil {
		return "", err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(p.Project), PeriodFileName(p))
	rel, err := filepath.Rel(s.root, dst)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return dst, nil
}

func (s *fileStore) read(p tarefa.Period) ([]byte, Version, error) {
	src, err := s.periodPath(p)
	if err != nil {
		return nil, "", err
	}
	b, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", unavailable("read "+p.String(), err)
	}
	return b, BlobVersion(b), nil
}

func (s *fileStore) LoadPeriod(ctx context.Context, p tarefa.Period) ([]tarefa.Record, Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	b, v, err := s.read(p)
	s.mu.Unlock()
	if err != nil {
		return nil, "", err
	}
	recs, err := DecodePeriod(b)
	if err != nil {
		return nil, "", unavailable("decode "+p.String(), err)
	}
	return recs, v, nil
}

func (s *fileStore) SavePeriod(ctx context.Context, p tarefa.Period, recs []tarefa.Record, expected Version) (Version, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := EncodePeriod(recs)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, actual, err := s.read(p)
	if err != nil {
		return "", err
	}
	if actual != expected {
		return "", &ConflictError{Period: p, Expected: expected, Actual: actual}
	}

	dst, err := s.periodPath(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", unavailable("mkdir", err)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return "", unavailable("write "+p.String(), err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", unavailable("rename "+p.String(), err)
	}
	v := BlobVersion(doc)
	s.log.Debug("period saved", logx.String("period", p.String()), logx.Int("records", len(recs)), logx.String("version", string(v)))
	return v, nil
}

func (s *fileStore) ListPeriods(ctx context.Context) ([]tarefa.Period, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := doublestar.Glob(os.DirFS(s.root), "**/tarefas_*.json")
	if err != nil {
		return nil, unavailable("list", err)
	}
	var out []tarefa.Period
	for _, m := range matches {
		dir, name := path.Split(m)
		project := strings.Trim(dir, "/")
		p, ok := ParsePeriodFileName(project, name)
		if !ok {
			continue
		}
		out = append(out, p)
	}
	sortPeriods(out)
	return out, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	return s.audit.AppendAudit(ctx, e)
}

func (s *fileStore) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	return s.audit.RecentAudit(ctx, n)
}

func (s *fileStore) Close() error { return s.audit.Close() }
