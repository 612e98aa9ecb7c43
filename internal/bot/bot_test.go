package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/calendar"
	"provisioner/internal/provision"
	"provisioner/internal/schedule"
	"provisioner/internal/storage"
	kit "provisioner/internal/transport"
	logx "provisioner/pkg/logx"
)

const owner = int64(42)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Message) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                      { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no reply sent")
	return f.sent[len(f.sent)-1]
}

func newBot(t *testing.T) (*Bot, *fakeAdapter, storage.Store) {
	t.Helper()
	hs, err := calendar.NewHolidaySet(calendar.HolidayConfig{Country: "BR"})
	require.NoError(t, err)
	store := storage.NewMemory()
	now := func() time.Time { return time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC) }
	svc, err := provision.New(store, provision.Settings{
		Calendar: calendar.New(hs),
		Policy:   schedule.DefaultPolicy(),
		Location: time.UTC,
	}, logx.Nop(), now)
	require.NoError(t, err)
	ad := &fakeAdapter{}
	return New(svc, ad, logx.Nop(), WithOwners([]int64{owner})), ad, store
}

func send(b *Bot, from int64, text string) {
	b.Handle(context.Background(), kit.Message{ChatID: 1, FromID: from, FromUsername: "ana", Text: text})
}

func TestRegisterThroughCommand(t *testing.T) {
	b, ad, _ := newBot(t)

	send(b, owner, `/new "Newsletter outubro" --deadline 2025-10-17 --desc "three pieces"`)
	out := ad.last(t)
	assert.Contains(t, out, "task #1 registered in 2025-10: Newsletter outubro")
	assert.Contains(t, out, "Text    2025-10-15")
	assert.Contains(t, out, "Layout  2025-10-16")
	assert.Contains(t, out, "HTML    2025-10-17")

	send(b, owner, "/list 2025-10")
	assert.Contains(t, ad.last(t), "2025-10: 3 subtasks")

	send(b, owner, "/nextid")
	assert.Equal(t, "next id: 2", ad.last(t))

	send(b, owner, "/log")
	assert.Contains(t, ad.last(t), "register ok #1 by @ana")
}

func TestEditMovesAcrossPeriods(t *testing.T) {
	b, ad, _ := newBot(t)
	send(b, owner, "/new Banner --deadline 2025-10-17 --kinds t,h")
	require.Contains(t, ad.last(t), "task #1 registered")

	send(b, owner, "/edit 1 --deadline 2025-11-14")
	out := ad.last(t)
	assert.Contains(t, out, "task #1 updated in 2025-11: Banner")
	assert.Contains(t, out, "HTML    2025-11-14")
	assert.Contains(t, out, "moved out of 2025-10")
	assert.NotContains(t, out, "Layout")

	send(b, owner, "/task 1")
	out = ad.last(t)
	assert.Contains(t, out, "task #1: Banner")
	assert.Contains(t, out, "deadline 2025-11-14")

	// the emptied October document stays behind
	send(b, owner, "/periods")
	assert.Equal(t, "2025-10\n2025-11", ad.last(t))
}

func TestPlanDoesNotWrite(t *testing.T) {
	b, ad, store := newBot(t)
	send(b, owner, "/plan Promo --deadline 2025-10-17")
	assert.Contains(t, ad.last(t), "not saved")

	ps, err := store.ListPeriods(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestErrorsAreDescribed(t *testing.T) {
	b, ad, _ := newBot(t)

	send(b, owner, "/new --deadline 2025-10-17")
	assert.Equal(t, "invalid input: MissingTitle", ad.last(t))

	send(b, owner, "/new Promo --deadline 2025-10-18")
	assert.Equal(t, "invalid input: DeadlineNotBusinessDay (2025-10-18)", ad.last(t))

	send(b, owner, "/new Promo --kinds x")
	assert.Equal(t, "invalid input: UnknownKind (x)", ad.last(t))

	for _, text := range []string{`/new Promo --kinds ""`, "/new Promo --kinds ,", "/new Promo -k=", "/new Promo --kinds"} {
		send(b, owner, text)
		assert.Equal(t, "invalid input: NoSubtaskSelected", ad.last(t), text)
	}

	send(b, owner, "/task 99")
	assert.Equal(t, "invalid input: TaskNotFound (99)", ad.last(t))

	send(b, owner, "/edit")
	assert.Equal(t, "error: task id required", ad.last(t))
}

func TestAccessAndRouting(t *testing.T) {
	b, ad, _ := newBot(t)

	send(b, 7, "/new Promo --deadline 2025-10-17")
	assert.Equal(t, "unauthorized", ad.last(t))

	send(b, 7, "/frobnicate")
	assert.Equal(t, "unknown command. try /help", ad.last(t))

	send(b, 7, "/help@provisioner_bot")
	assert.Contains(t, ad.last(t), "/new - register a task")

	send(b, 7, "/help edit")
	assert.Contains(t, ad.last(t), "usage: /edit <id>")

	n := len(ad.sent)
	send(b, owner, "just chatting")
	assert.Len(t, ad.sent, n, "plain text must be ignored")

	b.SetOwners([]int64{7})
	send(b, 7, "/nextid")
	assert.Equal(t, "next id: 1", ad.last(t))
}

func TestAgendaCommand(t *testing.T) {
	b, ad, _ := newBot(t)
	send(b, owner, "/new Post --deadline 2025-10-03 --kinds h")
	send(b, owner, "/agenda 2")
	out := ad.last(t)
	assert.True(t, strings.HasPrefix(out, "Agenda 2025-10-01 .. 2025-10-03"), out)
	assert.Contains(t, out, "#1 HTML: Post")
}

func TestMenuCommands(t *testing.T) {
	b, _, _ := newBot(t)
	menu := b.MenuCommands()
	require.NotEmpty(t, menu)
	assert.Equal(t, "new", menu[0].Command)
}
