package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"provisioner/internal/agenda"
	"provisioner/internal/provision"
	"provisioner/internal/tarefa"
)

func (b *Bot) commands() []Command {
	return []Command{
		{
			Name:        "new",
			Aliases:     []string{"register"},
			Description: "register a task",
			Usage:       `/new <title> [--deadline YYYY-MM-DD] [--kinds t,l,h] [--desc "..."] [--project p]`,
			Access:      AccessOwnerOnly,
			Handle:      b.cmdNew,
		},
		{
			Name:        "edit",
			Description: "reschedule or change a task",
			Usage:       `/edit <id> [--title "..."] [--deadline YYYY-MM-DD] [--kinds t,l,h] [--desc "..."] [--project p]`,
			Access:      AccessOwnerOnly,
			Handle:      b.cmdEdit,
		},
		{
			Name:        "plan",
			Description: "preview delivery dates without saving",
			Usage:       `/plan [title] [--deadline YYYY-MM-DD] [--kinds t,l,h] [--project p]`,
			Access:      AccessOwnerOnly,
			Handle:      b.cmdPlan,
		},
		{
			Name:        "list",
			Aliases:     []string{"ls"},
			Description: "list a month's subtasks",
			Usage:       "/list [YYYY-MM] [--project p]",
			Access:      AccessOwnerOnly,
			Handle:      b.cmdList,
		},
		{
			Name:        "periods",
			Description: "list months with records",
			Usage:       "/periods [--project p]",
			Access:      AccessOwnerOnly,
			Handle:      b.cmdPeriods,
		},
		{
			Name:        "task",
			Description: "show a task",
			Usage:       "/task <id> [--project p]",
			Access:      AccessOwnerOnly,
			Handle:      b.cmdTask,
		},
		{
			Name:        "nextid",
			Description: "show the next task id",
			Usage:       "/nextid [--project p]",
			Access:      AccessOwnerOnly,
			Handle:      b.cmdNextID,
		},
		{
			Name:        "log",
			Description: "recent operations",
			Usage:       "/log [n]",
			Access:      AccessOwnerOnly,
			Handle:      b.cmdLog,
		},
		{
			Name:        "agenda",
			Description: "deliveries due soon",
			Usage:       "/agenda [business days] [--project p]",
			Access:      AccessOwnerOnly,
			Handle:      b.cmdAgenda,
		},
		{
			Name:        "help",
			Aliases:     []string{"start", "h"},
			Description: "show help",
			Usage:       "/help [command]",
			Access:      AccessEveryone,
			Handle: func(ctx context.Context, req *Request) error {
				b.reply(ctx, req.Chat, b.helpText(req.Args))
				return nil
			},
		},
	}
}

func (b *Bot) projectFor(req *Request) string {
	if p, ok := flag(req.Flags, "project", "p"); ok {
		return strings.TrimSpace(p)
	}
	return b.defaultProject()
}

// taskInput fills in from flags over base; missing deadline and kinds default
// to the next business day and every kind. An explicitly empty --kinds stays
// empty and fails validation.
func (b *Bot) taskInput(req *Request, base provision.TaskInput) (provision.TaskInput, error) {
	in := base
	in.Project = b.projectFor(req)
	in.Actor = req.Actor()
	if v, ok := flag(req.Flags, "title"); ok {
		in.Title = v
	}
	if v, ok := flag(req.Flags, "desc", "description"); ok {
		in.Description = v
	}
	if v, ok := flag(req.Flags, "deadline", "d"); ok {
		d, err := tarefa.ParseDate(v)
		if err != nil {
			return in, err
		}
		in.Deadline = d
	}
	kindsGiven := req.Bools["kinds"] || req.Bools["k"]
	if v, ok := flag(req.Flags, "kinds", "k"); ok {
		ks, err := tarefa.ParseKinds(v)
		if err != nil {
			return in, err
		}
		in.Kinds, kindsGiven = ks, true
	} else if kindsGiven {
		in.Kinds = nil
	}
	if in.Deadline.IsZero() {
		in.Deadline = b.svc.DefaultDeadline()
	}
	if !kindsGiven && in.Kinds == nil {
		in.Kinds = tarefa.AllKinds()
	}
	return in, nil
}

func (b *Bot) cmdNew(ctx context.Context, req *Request) error {
	in, err := b.taskInput(req, provision.TaskInput{Title: strings.Join(req.Args, " ")})
	if err != nil {
		return err
	}
	res, err := b.svc.Register(ctx, in)
	if err != nil {
		return err
	}
	b.reply(ctx, req.Chat, formatResult("registered", in.Title, res))
	return nil
}

func (b *Bot) cmdPlan(ctx context.Context, req *Request) error {
	in, err := b.taskInput(req, provision.TaskInput{Title: strings.Join(req.Args, " ")})
	if err != nil {
		return err
	}
	res, err := b.svc.Plan(ctx, in)
	if err != nil {
		return err
	}
	b.reply(ctx, req.Chat, formatPlan(in.Title, res))
	return nil
}

func taskIDArg(req *Request) (tarefa.TaskID, error) {
	if len(req.Args) == 0 || strings.TrimSpace(req.Args[0]) == "" {
		return "", errors.New("task id required")
	}
	return tarefa.TaskID(strings.TrimPrefix(strings.TrimSpace(req.Args[0]), "#")), nil
}

func (b *Bot) cmdEdit(ctx context.Context, req *Request) error {
	id, err := taskIDArg(req)
	if err != nil {
		return err
	}
	cur, err := b.svc.FindTask(ctx, b.projectFor(req), id)
	if err != nil {
		return err
	}
	in, err := b.taskInput(req, provision.TaskInput{
		Title:       cur.Title,
		Description: cur.Description,
		Kinds:       cur.Kinds,
		Deadline:    cur.Deadline,
	})
	if err != nil {
		return err
	}
	res, err := b.svc.Edit(ctx, provision.EditInput{TaskInput: in, TaskID: id})
	if res != nil {
		b.reply(ctx, req.Chat, formatResult("updated", in.Title, res))
	}
	return err
}

func (b *Bot) cmdTask(ctx context.Context, req *Request) error {
	id, err := taskIDArg(req)
	if err != nil {
		return err
	}
	t, err := b.svc.FindTask(ctx, b.projectFor(req), id)
	if err != nil {
		return err
	}
	b.reply(ctx, req.Chat, formatTask(t))
	return nil
}

func (b *Bot) cmdList(ctx context.Context, req *Request) error {
	p := tarefa.PeriodOf(b.projectFor(req), b.svc.Today())
	if len(req.Args) > 0 {
		parsed, err := tarefa.ParsePeriod(req.Args[0])
		if err != nil {
			return err
		}
		if parsed.Project == "" {
			parsed.Project = p.Project
		}
		p = parsed
	}
	recs, err := b.svc.ListPeriod(ctx, p)
	if err != nil {
		return err
	}
	b.reply(ctx, req.Chat, formatRecords(p, recs))
	return nil
}

func (b *Bot) cmdPeriods(ctx context.Context, req *Request) error {
	ps, err := b.svc.ListPeriods(ctx, b.projectFor(req))
	if err != nil {
		return err
	}
	if len(ps) == 0 {
		b.reply(ctx, req.Chat, "no periods yet")
		return nil
	}
	lines := make([]string, 0, len(ps))
	for _, p := range ps {
		lines = append(lines, p.String())
	}
	b.reply(ctx, req.Chat, strings.Join(lines, "\n"))
	return nil
}

func (b *Bot) cmdNextID(ctx context.Context, req *Request) error {
	id, err := b.svc.NextID(ctx, b.projectFor(req))
	if err != nil {
		return err
	}
	b.reply(ctx, req.Chat, "next id: "+string(id))
	return nil
}

func (b *Bot) cmdLog(ctx context.Context, req *Request) error {
	n := 10
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid count %q", req.Args[0])
		}
		n = min(v, 100)
	}
	entries, err := b.svc.RecentLog(ctx, n)
	if err != nil {
		return err
	}
	b.reply(ctx, req.Chat, formatAudit(entries))
	return nil
}

func (b *Bot) cmdAgenda(ctx context.Context, req *Request) error {
	days := 0
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid number of days %q", req.Args[0])
		}
		days = v
	}
	d, err := b.digest.Build(ctx, b.projectFor(req), days)
	if err != nil {
		return err
	}
	b.reply(ctx, req.Chat, agenda.Render(d))
	return nil
}
