package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/config"
	"provisioner/internal/provision"
	"provisioner/internal/tarefa"
	kit "provisioner/internal/transport"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestStartRegisterStop(t *testing.T) {
	p := writeConfig(t, `{
		"logging": {"level": "error"},
		"storage": {"driver": "memory"},
		"scheduling": {"timezone": "UTC"},
		"agenda": {"enabled": true, "schedule": "@daily"}
	}`)
	a, err := New(p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	svc := a.Service()
	res, err := svc.Register(ctx, provision.TaskInput{
		Title:    "Smoke",
		Kinds:    []tarefa.Kind{tarefa.KindHTML},
		Deadline: svc.DefaultDeadline(),
	})
	require.NoError(t, err)
	assert.Equal(t, tarefa.TaskID("1"), res.TaskID)

	// no telegram: the digest goes to the log
	require.NoError(t, a.sendAgenda(ctx, "hello"))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopSignal))
	assert.NoError(t, a.Err())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(writeConfig(t, `{"storage": {"driver": "floppy"}}`))
	require.Error(t, err)

	_, err = New(writeConfig(t, `{"scheduling": {"timezone": "Mars/Olympus"}, "storage": {"driver": "memory"}}`))
	require.Error(t, err)
}

func TestAgendaConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Project: "acme", Agenda: config.AgendaConfig{Enabled: true, Schedule: "0 8 * * 1-5", Timezone: "UTC", LookaheadDays: 2}}
	ac, err := AgendaConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "acme", ac.Project)
	assert.Equal(t, time.UTC, ac.Location)
	assert.Equal(t, 2, ac.LookaheadDays)

	cfg.Agenda.Schedule = "sometimes"
	_, err = AgendaConfig(cfg)
	assert.ErrorContains(t, err, "agenda.schedule")
}

func TestSettings(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Scheduling: config.SchedulingConfig{Capacity: 2, DeadlinePolicy: "next", Timezone: "UTC"},
		IDs:        config.IDsConfig{Scope: "project"},
	}
	set, err := Settings(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Policy.Capacity)
	assert.Equal(t, 3, set.RetryMax)
	assert.Equal(t, provision.ScopeProject, set.IDScope)
	assert.True(t, set.Calendar.IsBusinessDay(time.Date(2025, 10, 17, 0, 0, 0, 0, time.UTC)))
	assert.False(t, set.Calendar.IsBusinessDay(time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)))

	cfg.Scheduling.MonthPolicy = "sideways"
	_, err = Settings(cfg)
	assert.ErrorContains(t, err, "scheduling.month_policy")
}

func TestAgendaTargets(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Telegram.GroupLog = "-100123"
	cfg.Telegram.OwnerUserIDs = []int64{5, 5, 9}
	cfg.Logging.Telegram.ThreadID = 3
	assert.Equal(t, []kit.ChatTarget{
		{ChatID: -100123, ThreadID: 3},
		{ChatID: 5},
		{ChatID: 9},
	}, agendaTargets(cfg))

	cfg.Telegram.GroupLog = "not-a-number"
	assert.Equal(t, []kit.ChatTarget{{ChatID: 5}, {ChatID: 9}}, agendaTargets(cfg))
}

func TestNeedsRestart(t *testing.T) {
	t.Parallel()
	a := &config.Config{}
	b := &config.Config{}
	assert.Empty(t, needsRestart(a, b))

	b.Storage.Driver = "sqlite"
	b.Telegram.Token = "x"
	b.Scheduling.Capacity = 9
	assert.Equal(t, []string{"storage", "telegram.token"}, needsRestart(a, b))
}
