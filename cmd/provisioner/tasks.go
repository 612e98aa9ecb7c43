package main

import (
	"context"
	"errors"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"provisioner/internal/config"
	"provisioner/internal/provision"
	"provisioner/internal/tarefa"
)

// taskFlags are shared by register, edit and plan.
type taskFlags struct {
	title    string
	desc     string
	deadline string
	kinds    string
}

func (f *taskFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "task title")
	cmd.Flags().StringVarP(&f.desc, "desc", "d", "", "task description")
	cmd.Flags().StringVar(&f.deadline, "deadline", "", "deadline YYYY-MM-DD (default: next business day)")
	cmd.Flags().StringVarP(&f.kinds, "kinds", "k", "text,layout,html", "subtask kinds (text,layout,html or t,l,h)")
}

// input overlays the flags the user set on base.
func (f *taskFlags) input(cmd *cobra.Command, base provision.TaskInput, svc *provision.Service) (provision.TaskInput, error) {
	in := base
	fl := cmd.Flags()
	if fl.Changed("title") {
		in.Title = f.title
	}
	if fl.Changed("desc") {
		in.Description = f.desc
	}
	if fl.Changed("deadline") {
		d, err := tarefa.ParseDate(f.deadline)
		if err != nil {
			return in, err
		}
		in.Deadline = d
	}
	if fl.Changed("kinds") || in.Kinds == nil {
		ks, err := tarefa.ParseKinds(f.kinds)
		if err != nil {
			return in, err
		}
		in.Kinds = ks
	}
	if in.Deadline.IsZero() {
		in.Deadline = svc.DefaultDeadline()
	}
	return in, nil
}

func actor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "cli"
}

func (c *cli) registerCmd() *cobra.Command {
	f := &taskFlags{}
	cmd := &cobra.Command{
		Use:     "register",
		Aliases: []string{"new"},
		Short:   "Register a task and schedule its subtasks",
		Example: `  provisioner register -t "Newsletter outubro" --deadline 2025-10-17
  provisioner register -t Banner -k t,h --deadline 2025-10-17 -p acme`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(ctx context.Context, cfg *config.Config, svc *provision.Service) error {
				in, err := f.input(cmd, provision.TaskInput{Project: c.projectOf(cfg), Actor: actor()}, svc)
				if err != nil {
					return err
				}
				res, err := svc.Register(ctx, in)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), "registered", in.Title, res)
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func (c *cli) editCmd() *cobra.Command {
	f := &taskFlags{}
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Reschedule a task, replacing all of its subtasks",
		Long: `Fields not given keep their current values. The task's current subtasks
do not count against capacity. When the new deadline falls in another month
the task is written there first and then removed from the old month.`,
		Example: `  provisioner edit 12 --deadline 2025-11-14
  provisioner edit 12 -k text,html -t "New title"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, cfg *config.Config, svc *provision.Service) error {
				project := c.projectOf(cfg)
				id := tarefa.TaskID(args[0])
				cur, err := svc.FindTask(ctx, project, id)
				if err != nil {
					return err
				}
				in, err := f.input(cmd, provision.TaskInput{
					Project:     project,
					Title:       cur.Title,
					Description: cur.Description,
					Kinds:       cur.Kinds,
					Deadline:    cur.Deadline,
					Actor:       actor(),
				}, svc)
				if err != nil {
					return err
				}
				res, err := svc.Edit(ctx, provision.EditInput{TaskInput: in, TaskID: id})
				if res != nil {
					printResult(cmd.OutOrStdout(), "updated", in.Title, res)
				}
				return err
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func (c *cli) planCmd() *cobra.Command {
	f := &taskFlags{}
	cmd := &cobra.Command{
		Use:     "plan",
		Short:   "Show the dates a registration would get, without saving",
		Example: `  provisioner plan --deadline 2025-10-17 -k l,h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(ctx context.Context, cfg *config.Config, svc *provision.Service) error {
				in, err := f.input(cmd, provision.TaskInput{Project: c.projectOf(cfg)}, svc)
				if err != nil {
					return err
				}
				res, err := svc.Plan(ctx, in)
				if err != nil {
					return err
				}
				printPlan(cmd.OutOrStdout(), in.Title, res)
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func (c *cli) taskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <id>",
		Short: "Show a task's subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, cfg *config.Config, svc *provision.Service) error {
				if args[0] == "" {
					return errors.New("task id required")
				}
				t, err := svc.FindTask(ctx, c.projectOf(cfg), tarefa.TaskID(args[0]))
				if err != nil {
					return err
				}
				printTask(cmd.OutOrStdout(), t)
				return nil
			})
		},
	}
}
