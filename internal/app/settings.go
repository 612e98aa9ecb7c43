package app

import (
	"fmt"
	"strconv"
	"strings"

	"provisioner/internal/agenda"
	"provisioner/internal/calendar"
	"provisioner/internal/config"
	"provisioner/internal/provision"
	"provisioner/internal/storage"
	logx "provisioner/pkg/logx"
)

// Settings maps the config onto the provisioning service settings.
func Settings(cfg *config.Config) (provision.Settings, error) {
	hs, err := cfg.HolidaySet()
	if err != nil {
		return provision.Settings{}, err
	}
	pol, err := cfg.Policy()
	if err != nil {
		return provision.Settings{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return provision.Settings{}, err
	}
	return provision.Settings{
		Calendar: calendar.New(hs),
		Policy:   pol,
		RetryMax: cfg.RetryMax(),
		IDScope:  cfg.IDScope(),
		Location: loc,
	}, nil
}

// AgendaConfig maps the agenda section, validating the cron spec.
func AgendaConfig(cfg *config.Config) (agenda.Config, error) {
	loc, err := cfg.AgendaLocation()
	if err != nil {
		return agenda.Config{}, err
	}
	out := agenda.Config{
		Enabled:       cfg.Agenda.Enabled,
		Schedule:      strings.TrimSpace(cfg.Agenda.Schedule),
		Location:      loc,
		LookaheadDays: cfg.Agenda.LookaheadDays,
		Project:       cfg.Project,
	}
	if out.Schedule != "" {
		if _, err := agenda.ParseSchedule(out.Schedule); err != nil {
			return agenda.Config{}, fmt.Errorf("agenda.schedule: %w", err)
		}
	}
	return out, nil
}

// OpenService opens the configured store and builds the service on top of it.
// The caller owns the returned store.
func OpenService(cfg *config.Config, log logx.Logger) (*provision.Service, storage.Store, error) {
	set, err := Settings(cfg)
	if err != nil {
		return nil, nil, err
	}
	scfg, err := cfg.StorageConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, nil, err
	}
	svc, err := provision.New(st, set, log.With(logx.String("comp", "provision")), nil)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return svc, st, nil
}

func parseChatID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}
