// Package app wires the long-running provisioner: config hot reload, logging,
// the record store, the Telegram command surface and the agenda.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"provisioner/internal/agenda"
	"provisioner/internal/bot"
	"provisioner/internal/config"
	"provisioner/internal/provision"
	"provisioner/internal/runtime/supervisor"
	"provisioner/internal/storage"
	kit "provisioner/internal/transport"
	"provisioner/internal/transport/telegram"
	logx "provisioner/pkg/logx"
)

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	svc     *provision.Service
	agenda  *agenda.Service
	adapter kit.Adapter // nil when telegram is disabled
	bot     *bot.Bot

	msgs chan kit.Message
}

// New loads the config and builds every component without starting any.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	logs, root := logx.New(cfg.LogxConfig())
	log := root.With(logx.String("comp", "app"))

	svc, st, err := OpenService(cfg, root)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a := &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logs,
		store: st,
		svc:   svc,
		msgs:  make(chan kit.Message, 256),
	}
	a.agenda = agenda.New(svc, a.sendAgenda, root.With(logx.String("comp", "agenda")))

	if cfg.Telegram.Enabled {
		pollTimeout, err := cfg.PollTimeout()
		if err != nil {
			a.closeEarly()
			return nil, err
		}
		ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, root.With(logx.String("comp", "telegram")))
		if err != nil {
			a.closeEarly()
			return nil, err
		}
		a.adapter = ad
		logs.SetSender(ad)
		a.bot = bot.New(svc, ad, root.With(logx.String("comp", "bot")),
			bot.WithOwners(cfg.Telegram.OwnerUserIDs),
			bot.WithProject(cfg.Project),
			bot.WithAgenda(a.agenda),
		)
	}
	a.setChatTarget(cfg)
	return a, nil
}

func (a *App) closeEarly() {
	_ = a.store.Close()
	_ = a.logs.Close()
}

// Service exposes the provisioning service.
func (a *App) Service() *provision.Service { return a.svc }

// Done is closed when the app stops or hits a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// validate before commit so a bad edit never reaches the running service
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := Settings(cfg); err != nil {
			return err
		}
		_, err := AgendaConfig(cfg)
		return err
	})

	cfg := a.cfgm.Get()
	acfg, err := AgendaConfig(cfg)
	if err != nil {
		return err
	}
	if err := a.agenda.Apply(acfg); err != nil {
		return err
	}

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.msgs); err != nil {
			return err
		}
		a.sup.Go("bot.dispatch", func(c context.Context) error {
			return a.bot.Run(c, a.msgs)
		})
		if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
			a.sup.Go0("bot.menu", func(c context.Context) {
				mctx, cancel := context.WithTimeout(c, 10*time.Second)
				defer cancel()
				if err := mu.UpdateMenuCommands(mctx, a.bot.MenuCommands()); err != nil {
					a.log.Warn("menu update failed", logx.Err(err))
				}
			})
		}
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started",
		logx.String("storage", cfg.Storage.Driver),
		logx.Bool("telegram", a.adapter != nil),
		logx.Bool("agenda", acfg.Enabled),
	)
	return nil
}

// applyConfig pushes a validated config into the running components.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(next.LogxConfig())
	a.setChatTarget(next)

	if set, err := Settings(next); err != nil {
		a.log.Warn("scheduling settings not applied", logx.Err(err))
	} else if err := a.svc.Reconfigure(set); err != nil {
		a.log.Warn("scheduling settings not applied", logx.Err(err))
	}

	if a.bot != nil {
		a.bot.SetOwners(next.Telegram.OwnerUserIDs)
		a.bot.SetProject(next.Project)
	}

	if acfg, err := AgendaConfig(next); err != nil {
		a.log.Warn("agenda settings not applied", logx.Err(err))
	} else if err := a.agenda.Apply(acfg); err != nil {
		a.log.Warn("agenda settings not applied", logx.Err(err))
	}

	if restart := needsRestart(prev, next); len(restart) > 0 {
		a.log.Warn("some changes take effect after restart", logx.Strs("fields", restart))
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

// needsRestart lists changed settings that are bound at startup.
func needsRestart(prev, next *config.Config) []string {
	var out []string
	if prev.Storage != next.Storage {
		out = append(out, "storage")
	}
	if prev.Telegram.Enabled != next.Telegram.Enabled {
		out = append(out, "telegram.enabled")
	}
	if prev.Telegram.Token != next.Telegram.Token {
		out = append(out, "telegram.token")
	}
	if prev.Telegram.PollTimeout != next.Telegram.PollTimeout {
		out = append(out, "telegram.poll_timeout")
	}
	return out
}

func (a *App) setChatTarget(cfg *config.Config) {
	if id, ok := parseChatID(cfg.Telegram.GroupLog); ok {
		a.logs.SetChatTarget(kit.ChatTarget{ChatID: id, ThreadID: cfg.Logging.Telegram.ThreadID})
		return
	}
	a.logs.SetChatTarget(kit.ChatTarget{})
}

// agendaTargets are the log group (if any) followed by each owner's private chat.
func agendaTargets(cfg *config.Config) []kit.ChatTarget {
	var out []kit.ChatTarget
	if id, ok := parseChatID(cfg.Telegram.GroupLog); ok {
		out = append(out, kit.ChatTarget{ChatID: id, ThreadID: cfg.Logging.Telegram.ThreadID})
	}
	for _, o := range cfg.Telegram.OwnerUserIDs {
		t := kit.ChatTarget{ChatID: o}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func (a *App) sendAgenda(ctx context.Context, text string) error {
	if a.adapter == nil {
		a.log.Info("agenda", logx.String("text", text))
		return nil
	}
	var errs []error
	for _, to := range agendaTargets(a.cfgm.Get()) {
		if _, err := a.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", to.ChatID, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}
	a.sup.Cancel()

	// each step is bounded so one component can't stall the whole stop
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("agenda", 2*time.Second, func(c context.Context) error { a.agenda.Stop(c); return nil })
	if a.adapter != nil {
		step("telegram", 3*time.Second, a.adapter.Stop)
	}
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
