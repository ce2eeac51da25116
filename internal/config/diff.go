package config

import (
	"sort"
	"strings"

	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections and safe
// structured attrs for logging the reload.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if !schedulerEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.Int("scheduler.default_snooze_minutes", newCfg.Scheduler.DefaultSnoozeMinutes),
			logx.Int("scheduler.max_snooze_count", newCfg.Scheduler.MaxSnoozeCount),
			logx.String("scheduler.alarm_timeout", strings.TrimSpace(newCfg.Scheduler.AlarmTimeout)),
			logx.Int("scheduler.alarm_volume_pct", newCfg.Scheduler.AlarmVolumePct),
			logx.Int("scheduler.retention_days", newCfg.Scheduler.RetentionDays),
			logx.String("scheduler.missed_task_policy", strings.TrimSpace(newCfg.Scheduler.MissedTaskPolicy)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if oldCfg.Audio != newCfg.Audio {
		changed = append(changed, "audio")
		attrs = append(attrs,
			logx.Bool("audio.enabled", newCfg.Audio.Enabled),
			logx.Bool("audio.device_set", strings.TrimSpace(newCfg.Audio.Device) != ""),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func schedulerEqual(a, b SchedulerConfig) bool {
	// MissedEventRecovery is a pointer; compare by effective value.
	am, bm := true, true
	if a.MissedEventRecovery != nil {
		am = *a.MissedEventRecovery
	}
	if b.MissedEventRecovery != nil {
		bm = *b.MissedEventRecovery
	}
	a.MissedEventRecovery, b.MissedEventRecovery = nil, nil
	return a == b && am == bm
}
