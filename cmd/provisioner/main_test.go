package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/storage"
	"provisioner/internal/tarefa"
)

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`storage:
  driver: file
  path: %q
scheduling:
  timezone: UTC
holidays:
  country: BR
`, filepath.Join(dir, "data"))
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(cfg), 0o600))
	return p
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath, "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRegisterListNextID(t *testing.T) {
	cfg := setup(t)

	out, err := run(t, cfg, "register", "-t", "Smoke test", "-k", "html")
	require.NoError(t, err)
	assert.Contains(t, out, "task #1 registered")
	assert.Contains(t, out, "HTML")

	out, err = run(t, cfg, "next-id")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, err = run(t, cfg, "periods")
	require.NoError(t, err)
	periods := strings.Fields(out)
	require.Len(t, periods, 1)

	out, err = run(t, cfg, "list", periods[0])
	require.NoError(t, err)
	assert.Contains(t, out, "1 subtasks")
	assert.Contains(t, out, "Smoke test")

	out, err = run(t, cfg, "task", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 Smoke test")

	out, err = run(t, cfg, "log")
	require.NoError(t, err)
	assert.Contains(t, out, "register #1")
}

func TestPlanWritesNothing(t *testing.T) {
	cfg := setup(t)
	out, err := run(t, cfg, "plan", "-k", "h")
	require.NoError(t, err)
	assert.Contains(t, out, "not saved")

	out, err = run(t, cfg, "periods")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestValidationExitCode(t *testing.T) {
	cfg := setup(t)
	_, err := run(t, cfg, "register", "-k", "h")
	require.Error(t, err)
	assert.True(t, tarefa.IsValidation(err, tarefa.ReasonMissingTitle))
	assert.Equal(t, 2, exitCode(err))

	_, err = run(t, cfg, "register", "-t", "x", "--deadline", "2001-01-01")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, err = run(t, cfg, "task", "404")
	assert.True(t, tarefa.IsValidation(err, tarefa.ReasonTaskNotFound))
}

func TestHolidays(t *testing.T) {
	cfg := setup(t)
	out, err := run(t, cfg, "holidays", "2025")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-12-25")
	assert.Contains(t, out, "2025-09-07")

	_, err = run(t, cfg, "holidays", "soon")
	assert.Error(t, err)
}

func TestExitCodes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, exitCode(fmt.Errorf("plain")))
	assert.Equal(t, 3, exitCode(&tarefa.SchedulingError{Reason: tarefa.ReasonNoAvailableSlot}))
	assert.Equal(t, 4, exitCode(&storage.ConflictError{}))
	assert.Equal(t, 5, exitCode(fmt.Errorf("get: %w", storage.ErrUnavailable)))
}
