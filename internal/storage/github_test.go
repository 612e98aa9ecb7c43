package storage

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"provisioner/internal/tarefa"
	logx "provisioner/pkg/logx"
)

// fakeGitHub serves the subset of the Contents API the github driver uses.
type fakeGitHub struct {
	mu    sync.Mutex
	files map[string][]byte // repo path -> content
	srv   *httptest.Server
	puts  int
	fail  int // status to return for every request when non-zero
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{files: map[string][]byte{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGitHub) config() GitHubConfig {
	return GitHubConfig{
		Owner: "org", Repo: "tasks", Branch: "main", Token: "t0ken",
		BaseURL: f.srv.URL, RatePerSec: 1000, Timeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (f *fakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer t0ken" {
		writeJSON(w, http.StatusUnauthorized, []byte(`{"message":"Bad credentials"}`))
		return
	}
	if f.fail != 0 {
		writeJSON(w, f.fail, []byte(`{"message":"injected"}`))
		return
	}
	const prefix = "/repos/org/tasks/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeJSON(w, http.StatusNotFound, []byte(`{"message":"Not Found"}`))
		return
	}
	p := strings.TrimPrefix(r.URL.Path, prefix)

	switch r.Method {
	case http.MethodGet:
		if b, ok := f.files[p]; ok {
			body, _ := sjson.SetBytes(nil, "sha", string(BlobVersion(b)))
			body, _ = sjson.SetBytes(body, "encoding", "base64")
			// GitHub wraps base64 content at 60 columns.
			body, _ = sjson.SetBytes(body, "content", wrap(base64.StdEncoding.EncodeToString(b), 60))
			writeJSON(w, http.StatusOK, body)
			return
		}
		if entries := f.dir(p); len(entries) > 0 {
			list := []byte("[]")
			for _, e := range entries {
				list, _ = sjson.SetRawBytes(list, "-1", e)
			}
			writeJSON(w, http.StatusOK, list)
			return
		}
		writeJSON(w, http.StatusNotFound, []byte(`{"message":"Not Found"}`))
	case http.MethodPut:
		f.puts++
		body, _ := io.ReadAll(r.Body)
		req := gjson.ParseBytes(body)
		cur, exists := f.files[p]
		sha := req.Get("sha")
		switch {
		case exists && !sha.Exists():
			writeJSON(w, http.StatusUnprocessableEntity, []byte(`{"message":"Invalid request.\n\n\"sha\" wasn't supplied."}`))
			return
		case exists && sha.String() != string(BlobVersion(cur)):
			writeJSON(w, http.StatusConflict, []byte(`{"message":"tarefas does not match"}`))
			return
		case !exists && sha.Exists():
			writeJSON(w, http.StatusNotFound, []byte(`{"message":"Not Found"}`))
			return
		}
		doc, err := base64.StdEncoding.DecodeString(req.Get("content").String())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, []byte(`{"message":"bad content"}`))
			return
		}
		f.files[p] = doc
		resp, _ := sjson.SetBytes(nil, "content.sha", string(BlobVersion(doc)))
		status := http.StatusOK
		if !exists {
			status = http.StatusCreated
		}
		writeJSON(w, status, resp)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, nil)
	}
}

// dir lists direct children of p as Contents API entries.
func (f *fakeGitHub) dir(p string) [][]byte {
	seen := map[string]string{}
	for fp := range f.files {
		rest, ok := strings.CutPrefix(fp, p+"/")
		if !ok {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		typ := "file"
		if nested {
			typ = "dir"
		}
		seen[name] = typ
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([][]byte, 0, len(names))
	for _, n := range names {
		e, _ := sjson.SetBytes(nil, "name", n)
		e, _ = sjson.SetBytes(e, "type", seen[n])
		e, _ = sjson.SetBytes(e, "path", path.Join(p, n))
		out = append(out, e)
	}
	return out
}

func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteByte('\n')
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}

func TestGitHubStoreWritesUnderDataDir(t *testing.T) {
	ctx := context.Background()
	gh := newFakeGitHub(t)
	st, err := Open(Config{Driver: "github", GitHub: gh.config()}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	_, err = st.SavePeriod(ctx, tarefa.Period{Project: "acme", Year: 2025, Month: time.October}, sampleRecords(t), "")
	require.NoError(t, err)

	gh.mu.Lock()
	_, ok := gh.files["data/acme/tarefas_2025_10.json"]
	gh.mu.Unlock()
	assert.True(t, ok)
}

func TestGitHubStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	p := tarefa.Period{Year: 2025, Month: time.October}

	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError} {
		gh := newFakeGitHub(t)
		gh.mu.Lock()
		gh.fail = status
		gh.mu.Unlock()
		st, err := Open(Config{Driver: "github", GitHub: gh.config()}, logx.Nop())
		require.NoError(t, err)

		_, _, err = st.LoadPeriod(ctx, p)
		assert.ErrorIs(t, err, ErrUnavailable, "load with %d", status)
		_, err = st.SavePeriod(ctx, p, nil, "")
		assert.ErrorIs(t, err, ErrUnavailable, "save with %d", status)
		assert.False(t, IsConflict(err))
		_ = st.Close()
	}
}

func TestGitHubStoreBadToken(t *testing.T) {
	gh := newFakeGitHub(t)
	cfg := gh.config()
	cfg.Token = "wrong"
	st, err := Open(Config{Driver: "github", GitHub: cfg}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	_, _, err = st.LoadPeriod(context.Background(), tarefa.Period{Year: 2025, Month: time.May})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "Bad credentials")
}

func TestGitHubStoreRequiresRepo(t *testing.T) {
	_, err := Open(Config{Driver: "github", GitHub: GitHubConfig{Token: "x"}}, logx.Nop())
	require.Error(t, err)
}
