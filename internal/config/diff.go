package config

import (
	"reflect"
	"strings"

	logx "provisioner/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe structured
// attrs for logging (never includes tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Project != newCfg.Project {
		changed = append(changed, "project")
		attrs = append(attrs, logx.String("project", newCfg.Project))
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	// Telegram (never log token)
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Enabled != nt.Enabled || ot.PollTimeout != nt.PollTimeout ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		ot.Token != nt.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Scheduling != newCfg.Scheduling {
		changed = append(changed, "scheduling")
		attrs = append(attrs,
			logx.Int("scheduling.capacity", newCfg.Scheduling.Capacity),
			logx.String("scheduling.deadline_policy", newCfg.Scheduling.DeadlinePolicy),
			logx.String("scheduling.month_policy", newCfg.Scheduling.MonthPolicy),
			logx.String("scheduling.precedence_policy", newCfg.Scheduling.PrecedencePolicy),
		)
	}
	if !reflect.DeepEqual(oldCfg.Holidays, newCfg.Holidays) {
		changed = append(changed, "holidays")
		attrs = append(attrs,
			logx.String("holidays.country", newCfg.Holidays.Country),
			logx.Int("holidays.extra", len(newCfg.Holidays.Extra)),
		)
	}
	if oldCfg.IDs != newCfg.IDs {
		changed = append(changed, "ids")
		attrs = append(attrs, logx.String("ids.scope", newCfg.IDScope()))
	}
	if oldCfg.Agenda != newCfg.Agenda {
		changed = append(changed, "agenda")
		attrs = append(attrs,
			logx.Bool("agenda.enabled", newCfg.Agenda.Enabled),
			logx.String("agenda.schedule", newCfg.Agenda.Schedule),
		)
	}
	return changed, attrs
}
