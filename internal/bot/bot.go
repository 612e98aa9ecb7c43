// Package bot is the Telegram command surface over the provisioning service.
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"provisioner/internal/agenda"
	"provisioner/internal/provision"
	"provisioner/internal/storage"
	"provisioner/internal/tarefa"
	kit "provisioner/internal/transport"
	logx "provisioner/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // 0 means DefaultTimeout
	Handle      HandlerFunc
}

const DefaultTimeout = 30 * time.Second

type Request struct {
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Command      string
	Args         []string // positionals
	Flags        map[string]string
	Bools        map[string]bool
	ReqID        string
	Logger       logx.Logger
}

// Actor names the requester in audit entries.
func (r *Request) Actor() string {
	if r.FromUsername != "" {
		return "@" + r.FromUsername
	}
	return "tg:" + strconv.FormatInt(r.FromID, 10)
}

type Bot struct {
	svc     *provision.Service
	digest  *agenda.Service
	adapter kit.Adapter
	log     logx.Logger

	mu      sync.RWMutex
	owners  []int64
	project string

	cmds  map[string]*Command // name and aliases
	order []*Command
	jobs  chan func()
}

type Option func(*Bot)

func WithOwners(ids []int64) Option { return func(b *Bot) { b.owners = slices.Clone(ids) } }

// WithProject sets the project used when a command has no --project flag.
func WithProject(p string) Option { return func(b *Bot) { b.project = p } }

// WithAgenda shares the digest builder used by the scheduled agenda.
func WithAgenda(a *agenda.Service) Option { return func(b *Bot) { b.digest = a } }

func New(svc *provision.Service, adapter kit.Adapter, log logx.Logger, opts ...Option) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		svc:     svc,
		adapter: adapter,
		log:     log,
		cmds:    map[string]*Command{},
		jobs:    make(chan func(), 256),
	}
	for _, o := range opts {
		o(b)
	}
	if b.digest == nil {
		b.digest = agenda.New(svc, nil, log)
	}
	for _, c := range b.commands() {
		b.register(c)
	}
	return b
}

func (b *Bot) register(c Command) {
	cc := c
	b.order = append(b.order, &cc)
	b.cmds[cc.Name] = &cc
	for _, a := range cc.Aliases {
		if a = strings.TrimSpace(a); a != "" {
			b.cmds[a] = &cc
		}
	}
}

// SetOwners replaces the owner list; safe during hot reload.
func (b *Bot) SetOwners(ids []int64) {
	b.mu.Lock()
	b.owners = slices.Clone(ids)
	b.mu.Unlock()
}

func (b *Bot) SetProject(p string) {
	b.mu.Lock()
	b.project = p
	b.mu.Unlock()
}

func (b *Bot) isOwner(id int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Contains(b.owners, id)
}

func (b *Bot) defaultProject() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.project
}

// MenuCommands lists the commands for the Telegram menu.
func (b *Bot) MenuCommands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(b.order))
	for _, c := range b.order {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// Run dispatches messages to a bounded worker pool until ctx is done or in is
// closed.
func (b *Bot) Run(ctx context.Context, in <-chan kit.Message) error {
	workers := max(2, runtime.NumCPU())
	b.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(b.jobs)))

	wctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("panic in command worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-wctx.Done():
					return
				case job := <-b.jobs:
					job()
				}
			}
		}(i)
	}
	defer func() {
		cancel()
		wg.Wait()
		b.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-in:
			if !ok {
				return nil
			}
			job, ok := b.route(ctx, m)
			if !ok {
				continue
			}
			select {
			case b.jobs <- job:
			default:
				b.reply(ctx, kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}, "busy, try again")
			}
		}
	}
}

// Handle runs a message synchronously.
func (b *Bot) Handle(ctx context.Context, m kit.Message) {
	if job, ok := b.route(ctx, m); ok {
		job()
	}
}

// route resolves the command and returns the job that runs it. Replies for
// unknown or unauthorized commands are sent directly.
func (b *Bot) route(ctx context.Context, m kit.Message) (func(), bool) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return nil, false
	}
	parts := tokenize(text)
	if len(parts) == 0 {
		return nil, false
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	to := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}

	cmd, ok := b.cmds[strings.ToLower(word)]
	if !ok {
		b.reply(ctx, to, "unknown command. try /help")
		return nil, false
	}
	if cmd.Access == AccessOwnerOnly && !b.isOwner(m.FromID) {
		b.reply(ctx, to, "unauthorized")
		return nil, false
	}

	pos, flags, bools := parseFlags(parts[1:])
	rid := uuid.NewString()
	req := &Request{
		Chat:         to,
		FromID:       m.FromID,
		FromUsername: m.FromUsername,
		Command:      cmd.Name,
		Args:         pos,
		Flags:        flags,
		Bools:        bools,
		ReqID:        rid,
		Logger: b.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", m.ChatID),
			logx.Int64("from_id", m.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	final := chain(cmd.Handle, withRecover(), withRequestLog(), withTimeout(timeout))
	return func() {
		if err := final(ctx, req); err != nil {
			b.reply(ctx, to, describeError(err))
		}
	}, true
}

func (b *Bot) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := b.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		b.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

// describeError turns service errors into user-facing text.
func describeError(err error) string {
	var (
		ve *tarefa.ValidationError
		se *tarefa.SchedulingError
	)
	switch {
	case errors.As(err, &ve):
		if ve.Detail != "" {
			return fmt.Sprintf("invalid input: %s (%s)", ve.Reason, ve.Detail)
		}
		return fmt.Sprintf("invalid input: %s", ve.Reason)
	case errors.As(err, &se):
		return fmt.Sprintf("cannot schedule %s from %s: %s", se.Kind.Label(), tarefa.FormatDate(se.Base), se.Reason)
	case storage.IsConflict(err):
		return "the period was changed by someone else; try again"
	case errors.Is(err, storage.ErrUnavailable):
		return "storage unavailable: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	}
	return "error: " + err.Error()
}

func (b *Bot) helpText(args []string) string {
	if len(args) > 0 {
		if c, ok := b.cmds[strings.TrimPrefix(strings.ToLower(args[0]), "/")]; ok {
			var sb strings.Builder
			fmt.Fprintf(&sb, "/%s - %s\nusage: %s", c.Name, c.Description, c.Usage)
			if len(c.Aliases) > 0 {
				fmt.Fprintf(&sb, "\naliases: /%s", strings.Join(c.Aliases, ", /"))
			}
			return sb.String()
		}
		return "unknown command: " + args[0]
	}
	names := make([]string, 0, len(b.order))
	byName := map[string]*Command{}
	for _, c := range b.order {
		names = append(names, c.Name)
		byName[c.Name] = c
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteString("commands:\n")
	for _, n := range names {
		fmt.Fprintf(&sb, "/%s - %s\n", n, byName[n].Description)
	}
	sb.WriteString("\ndates are YYYY-MM-DD; kinds are text,layout,html (or t,l,h)")
	return sb.String()
}
