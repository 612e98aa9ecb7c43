package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"provisioner/internal/tarefa"
	logx "provisioner/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps each period document in one row. The version column holds
// the document's blob sha and updates are compare-and-swap on it.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) current(ctx context.Context, p tarefa.Period) (string, Version, error) {
	var doc, ver string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, version FROM periods WHERE project = ? AND year = ? AND month = ?`,
		p.Project, p.Year, int(p.Month),
	).Scan(&doc, &ver)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", unavailable("load "+p.String(), err)
	}
	return doc, Version(ver), nil
}

func (s *sqliteStore) LoadPeriod(ctx context.Context, p tarefa.Period) ([]tarefa.Record, Version, error) {
	doc, v, err := s.current(ctx, p)
	if err != nil {
		return nil, "", err
	}
	recs, err := DecodePeriod([]byte(doc))
	if err != nil {
		return nil, "", unavailable("decode "+p.String(), err)
	}
	return recs, v, nil
}

func (s *sqliteStore) SavePeriod(ctx context.Context, p tarefa.Period, recs []tarefa.Record, expected Version) (Version, error) {
	doc, err := EncodePeriod(recs)
	if err != nil {
		return "", err
	}
	next := BlobVersion(doc)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var res sql.Result
	if expected == "" {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO periods(project, year, month, version, doc, updated_at) VALUES(?,?,?,?,?,?)
			 ON CONFLICT(project, year, month) DO NOTHING`,
			p.Project, p.Year, int(p.Month), string(next), string(doc), now,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE periods SET version = ?, doc = ?, updated_at = ?
			 WHERE project = ? AND year = ? AND month = ? AND version = ?`,
			string(next), string(doc), now, p.Project, p.Year, int(p.Month), string(expected),
		)
	}
	if err != nil {
		return "", unavailable("save "+p.String(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", unavailable("save "+p.String(), err)
	}
	if n == 0 {
		_, actual, _ := s.current(ctx, p)
		return "", &ConflictError{Period: p, Expected: expected, Actual: actual}
	}
	return next, nil
}

func (s *sqliteStore) ListPeriods(ctx context.Context) ([]tarefa.Period, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project, year, month FROM periods ORDER BY project, year, month`)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()
	var out []tarefa.Period
	for rows.Next() {
		var (
			p tarefa.Period
			m int
		)
		if err := rows.Scan(&p.Project, &p.Year, &m); err != nil {
			return nil, unavailable("list", err)
		}
		p.Month = time.Month(m)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return out, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, req_id, actor, action, task_id, period, ok, err, detail)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.ReqID, nullStr(e.Actor), e.Action,
		nullStr(e.TaskID), nullStr(e.Period), e.OK, nullStr(e.Error), nullStr(e.Detail),
	)
	return err
}

func (s *sqliteStore) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	if n <= 0 {
		n = -1 // no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, req_id, actor, action, task_id, period, ok, err, detail
		 FROM audit ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var at string
		var actor, taskID, period, errS, detail sql.NullString
		if err := rows.Scan(&at, &e.ReqID, &actor, &e.Action, &taskID, &period, &e.OK, &errS, &detail); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Actor, e.TaskID, e.Period, e.Error, e.Detail = actor.String, taskID.String, period.String, errS.String, detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
