package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/time/rate"

	"provisioner/internal/tarefa"
	logx "provisioner/pkg/logx"
)

// githubStore keeps period documents in a GitHub repository through the
// Contents API. The file sha is the version token: GitHub rejects a PUT whose
// sha does not match the current blob.
type githubStore struct {
	cfg     GitHubConfig
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	AuditLog
	closeAudit func() error
}

func openGitHub(cfg Config, log logx.Logger) (Store, error) {
	gh := cfg.GitHub
	if strings.TrimSpace(gh.Owner) == "" || strings.TrimSpace(gh.Repo) == "" {
		return nil, errors.New("storage.github.owner and storage.github.repo are required")
	}
	if strings.TrimSpace(gh.Token) == "" {
		return nil, errors.New("storage.github.token is required")
	}
	if gh.Dir == "" {
		gh.Dir = "data"
	}
	if gh.Branch == "" {
		gh.Branch = "main"
	}
	if gh.BaseURL == "" {
		gh.BaseURL = "https://api.github.com"
	}
	gh.BaseURL = strings.TrimRight(gh.BaseURL, "/")
	if gh.RatePerSec <= 0 {
		gh.RatePerSec = 5
	}
	if gh.Timeout <= 0 {
		gh.Timeout = 15 * time.Second
	}

	s := &githubStore{
		cfg:     gh,
		http:    &http.Client{Timeout: gh.Timeout},
		limiter: rate.NewLimiter(rate.Limit(gh.RatePerSec), max(1, int(gh.RatePerSec))),
		log:     log,
	}
	if p := strings.TrimSpace(cfg.AuditPath); p != "" {
		a, err := openJSONLAudit(p)
		if err != nil {
			return nil, err
		}
		s.AuditLog, s.closeAudit = a, a.Close
	} else {
		m := NewMemory()
		s.AuditLog, s.closeAudit = m, m.Close
	}
	return s, nil
}

func (s *githubStore) Close() error { return s.closeAudit() }

func (s *githubStore) filePath(p tarefa.Period) (string, error) {
	if err := tarefa.ValidateProject(p.Project); err != nil {
		return "", err
	}
	return path.Join(s.cfg.Dir, p.Project, PeriodFileName(p)), nil
}

func (s *githubStore) contentsURL(p string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", s.cfg.BaseURL,
		url.PathEscape(s.cfg.Owner), url.PathEscape(s.cfg.Repo), escapeSegments(p))
}

func escapeSegments(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// do sends one rate-limited request and returns status and body.
func (s *githubStore) do(ctx context.Context, method, u string, body []byte) (int, []byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}

func apiError(status int, body []byte) error {
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("github: %d %s", status, msg)
}

func (s *githubStore) LoadPeriod(ctx context.Context, p tarefa.Period) ([]tarefa.Record, Version, error) {
	fp, err := s.filePath(p)
	if err != nil {
		return nil, "", err
	}
	u := s.contentsURL(fp) + "?ref=" + url.QueryEscape(s.cfg.Branch)
	status, body, err := s.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", unavailable("load "+p.String(), err)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, "", nil
	case status != http.StatusOK:
		return nil, "", unavailable("load "+p.String(), apiError(status, body))
	}

	res := gjson.ParseBytes(body)
	sha := res.Get("sha").String()
	content := res.Get("content").String()
	// Files above 1 MB come back without inline content.
	if res.Get("encoding").String() == "none" || (content == "" && res.Get("size").Int() > 0) {
		content, err = s.blob(ctx, sha)
		if err != nil {
			return nil, "", unavailable("load "+p.String(), err)
		}
	}
	doc, err := base64.StdEncoding.DecodeString(stripNewlines(content))
	if err != nil {
		return nil, "", unavailable("decode "+p.String(), err)
	}
	recs, err := DecodePeriod(doc)
	if err != nil {
		return nil, "", unavailable("decode "+p.String(), err)
	}
	return recs, Version(sha), nil
}

func (s *githubStore) blob(ctx context.Context, sha string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/blobs/%s", s.cfg.BaseURL,
		url.PathEscape(s.cfg.Owner), url.PathEscape(s.cfg.Repo), url.PathEscape(sha))
	status, body, err := s.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", apiError(status, body)
	}
	return gjson.GetBytes(body, "content").String(), nil
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

func (s *githubStore) SavePeriod(ctx context.Context, p tarefa.Period, recs []tarefa.Record, expected Version) (Version, error) {
	fp, err := s.filePath(p)
	if err != nil {
		return "", err
	}
	doc, err := EncodePeriod(recs)
	if err != nil {
		return "", err
	}
	body, _ := sjson.SetBytes(nil, "message", fmt.Sprintf("Update %s", fp))
	body, _ = sjson.SetBytes(body, "content", base64.StdEncoding.EncodeToString(doc))
	body, _ = sjson.SetBytes(body, "branch", s.cfg.Branch)
	if expected != "" {
		body, _ = sjson.SetBytes(body, "sha", string(expected))
	}

	status, resp, err := s.do(ctx, http.MethodPut, s.contentsURL(fp), body)
	if err != nil {
		return "", unavailable("save "+p.String(), err)
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		v := Version(gjson.GetBytes(resp, "content.sha").String())
		s.log.Debug("period committed", logx.String("period", p.String()), logx.Int("records", len(recs)), logx.String("version", string(v)))
		return v, nil
	case http.StatusConflict:
		return "", &ConflictError{Period: p, Expected: expected}
	case http.StatusUnprocessableEntity:
		// Creating a file that now exists ("sha wasn't supplied") or passing a
		// sha that no longer matches both land here.
		msg := strings.ToLower(gjson.GetBytes(resp, "message").String())
		if strings.Contains(msg, "sha") {
			return "", &ConflictError{Period: p, Expected: expected}
		}
		return "", unavailable("save "+p.String(), apiError(status, resp))
	default:
		return "", unavailable("save "+p.String(), apiError(status, resp))
	}
}

func (s *githubStore) ListPeriods(ctx context.Context) ([]tarefa.Period, error) {
	var out []tarefa.Period
	root, err := s.listDir(ctx, s.cfg.Dir)
	if err != nil {
		return nil, err
	}
	for _, e := range root {
		switch e.typ {
		case "file":
			if p, ok := ParsePeriodFileName("", e.name); ok {
				out = append(out, p)
			}
		case "dir":
			sub, err := s.listDir(ctx, path.Join(s.cfg.Dir, e.name))
			if err != nil {
				return nil, err
			}
			for _, f := range sub {
				if f.typ != "file" {
					continue
				}
				if p, ok := ParsePeriodFileName(e.name, f.name); ok {
					out = append(out, p)
				}
			}
		}
	}
	sortPeriods(out)
	return out, nil
}

type dirEntry struct {
	name string
	typ  string
}

func (s *githubStore) listDir(ctx context.Context, dir string) ([]dirEntry, error) {
	u := s.contentsURL(dir) + "?ref=" + url.QueryEscape(s.cfg.Branch)
	status, body, err := s.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, unavailable("list "+dir, err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, unavailable("list "+dir, apiError(status, body))
	}
	var out []dirEntry
	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		out = append(out, dirEntry{name: v.Get("name").String(), typ: v.Get("type").String()})
		return true
	})
	return out, nil
}
