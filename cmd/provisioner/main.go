// Command provisioner schedules creative tasks into Text, Layout and HTML
// subtasks and serves the Telegram bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"provisioner/internal/app"
	"provisioner/internal/config"
	"provisioner/internal/provision"
	"provisioner/internal/storage"
	"provisioner/internal/tarefa"
	logx "provisioner/pkg/logx"
)

var version = "dev"

type cli struct {
	cfgPath  string
	project  string
	logLevel string
	noColor  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "provisioner",
		Short: "Schedule creative tasks across business days",
		Long: `provisioner splits a task into Text, Layout and HTML subtasks and gives each
a delivery date counted back from the deadline, skipping weekends and holidays
and respecting a per-day capacity per kind.

Records are stored per month (tarefas_YYYY_MM.json) in the configured store:
a local directory, a GitHub repository, SQLite or memory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if c.noColor || !isTerminal(cmd.OutOrStdout()) {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.cfgPath, "config", "c", "./config.json", "config file (.json, .yaml, .toml)")
	root.PersistentFlags().StringVarP(&c.project, "project", "p", "", "project scope (default: config project)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level for one-shot commands")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Tasks:"},
		&cobra.Group{ID: "query", Title: "Queries:"},
		&cobra.Group{ID: "runtime", Title: "Runtime:"},
	)
	for _, cmd := range []*cobra.Command{c.registerCmd(), c.editCmd(), c.planCmd()} {
		cmd.GroupID = "tasks"
		root.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{c.taskCmd(), c.listCmd(), c.periodsCmd(), c.nextIDCmd(), c.holidaysCmd(), c.logCmd()} {
		cmd.GroupID = "query"
		root.AddCommand(cmd)
	}
	serve := c.serveCmd()
	serve.GroupID = "runtime"
	root.AddCommand(serve)
	return root
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *cli) loadConfig() (*config.Config, error) {
	return config.NewConfigManager(c.cfgPath).Load()
}

// projectOf resolves --project over the config default.
func (c *cli) projectOf(cfg *config.Config) string {
	if c.project != "" {
		return c.project
	}
	return cfg.Project
}

// withService opens the store for the duration of fn.
func (c *cli) withService(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, svc *provision.Service) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	log := logx.NewConsole(c.logLevel)
	svc, st, err := app.OpenService(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cmd.Context(), cfg, svc)
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the agenda and config hot reload",
		Long: `Runs until SIGINT/SIGTERM. Edits to the config file are applied live
(logging, scheduling policy, holidays, owners, agenda); storage and Telegram
token changes need a restart. Notifies systemd when ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(c.cfgPath)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer stopCancel()
				_ = a.Stop(stopCtx, app.StopFatalError)
				return err
			}

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
			}
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			_ = a.Stop(stopCtx, reason)
			return a.Err()
		},
	}
}

// exitCode maps error classes to distinct exit statuses for scripts.
func exitCode(err error) int {
	switch {
	case errors.Is(err, tarefa.ErrValidation):
		return 2
	case errors.Is(err, tarefa.ErrScheduling):
		return 3
	case errors.Is(err, storage.ErrConcurrentModification):
		return 4
	case errors.Is(err, storage.ErrUnavailable):
		return 5
	}
	return 1
}
