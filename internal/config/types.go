package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Audio     AudioConfig     `json:"audio,omitempty"`
	Debug     DebugConfig     `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the event database.
//
// Example:
//
//	"storage": { "path": "/var/lib/dawnsched/events.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// SchedulerConfig controls the wake loop, snooze, alarm audio, retention
// and missed-event recovery.
//
// All durations are Go duration strings (e.g. "30s", "5m").
// Zero/omitted values fall back to the defaults documented per field.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// GracePeriod is how long the wake loop sleeps at startup before the
	// retention/recovery pass, so dependent subsystems can come up first.
	// Default: "30s".
	GracePeriod string `json:"grace_period,omitempty"`

	// DefaultSnoozeMinutes is used when a snooze request carries no duration.
	// Default: 9.
	DefaultSnoozeMinutes int `json:"default_snooze_minutes,omitempty"`

	// MaxSnoozeMinutes caps a single snooze. Default: 120.
	MaxSnoozeMinutes int `json:"max_snooze_minutes,omitempty"`

	// MaxSnoozeCount bounds how many times one event can be snoozed;
	// exceeding it forces a dismiss. Default: 3.
	MaxSnoozeCount int `json:"max_snooze_count,omitempty"`

	// AlarmTimeout bounds looping alarm playback. Clamped to 5m. Default: "2m".
	AlarmTimeout string `json:"alarm_timeout,omitempty"`

	// AlarmVolumePct scales alarm playback volume, 1..100. Default: 80.
	AlarmVolumePct int `json:"alarm_volume_pct,omitempty"`

	// RetentionDays is how long terminal-state events are kept before the
	// cleanup pass deletes them. Default: 30.
	RetentionDays int `json:"retention_days,omitempty"`

	// MaxEventsPerUser / MaxEventsTotal bound active (pending/snoozed/ringing)
	// events. Defaults: 25 / 100.
	MaxEventsPerUser int `json:"max_events_per_user,omitempty"`
	MaxEventsTotal   int `json:"max_events_total,omitempty"`

	// MissedEventRecovery toggles the startup reconciliation pass. Pointer so
	// an omitted field defaults to true.
	MissedEventRecovery *bool `json:"missed_event_recovery,omitempty"`

	// MissedTaskPolicy is "skip" or "execute". With "execute", a missed task
	// still runs if its age is within MissedTaskMaxAge. Default: "skip".
	MissedTaskPolicy string `json:"missed_task_policy,omitempty"`
	MissedTaskMaxAge string `json:"missed_task_max_age,omitempty"` // default "1h"

	// Timezone for recurrence math (IANA name). Empty means system local.
	Timezone string `json:"timezone,omitempty"`
}

type AudioConfig struct {
	Enabled bool   `json:"enabled"`
	Device  string `json:"device,omitempty"`
}

// DebugConfig controls the optional pprof endpoint. A non-loopback bind
// requires Token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	Token   string `json:"token,omitempty"`
}

// Scheduler knob defaults. The alarm timeout hard cap exists so a bad config
// cannot leave an alarm sounding for more than five minutes.
const (
	DefaultGracePeriod       = 30 * time.Second
	DefaultSnoozeMinutes     = 9
	DefaultMaxSnoozeMinutes  = 120
	DefaultMaxSnoozeCount    = 3
	DefaultAlarmTimeout      = 2 * time.Minute
	MaxAlarmTimeout          = 5 * time.Minute
	DefaultAlarmVolumePct    = 80
	DefaultRetentionDays     = 30
	DefaultMaxEventsPerUser  = 25
	DefaultMaxEventsTotal    = 100
	DefaultMissedTaskMaxAge  = time.Hour
	DefaultSQLiteBusyTimeout = 5 * time.Second
)

// SchedulerSettings is the resolved (defaulted, clamped, parsed) view of
// SchedulerConfig that the scheduler engine consumes.
type SchedulerSettings struct {
	Enabled              bool
	GracePeriod          time.Duration
	DefaultSnoozeMinutes int
	MaxSnoozeMinutes     int
	MaxSnoozeCount       int
	AlarmTimeout         time.Duration
	AlarmVolumePct       int
	RetentionDays        int
	MaxEventsPerUser     int
	MaxEventsTotal       int
	MissedEventRecovery  bool
	MissedTaskPolicy     string
	MissedTaskMaxAge     time.Duration
	Timezone             string
}

// Resolve applies defaults and clamps. It returns an error only for values
// that cannot be interpreted at all (bad duration strings, unknown policy);
// out-of-range numerics are clamped, not rejected.
func (c SchedulerConfig) Resolve() (SchedulerSettings, error) {
	s := SchedulerSettings{
		Enabled:              c.Enabled,
		DefaultSnoozeMinutes: c.DefaultSnoozeMinutes,
		MaxSnoozeMinutes:     c.MaxSnoozeMinutes,
		MaxSnoozeCount:       c.MaxSnoozeCount,
		AlarmVolumePct:       c.AlarmVolumePct,
		RetentionDays:        c.RetentionDays,
		MaxEventsPerUser:     c.MaxEventsPerUser,
		MaxEventsTotal:       c.MaxEventsTotal,
		Timezone:             strings.TrimSpace(c.Timezone),
	}

	var err error
	if s.GracePeriod, err = ParseDurationOrDefault("scheduler.grace_period", c.GracePeriod, DefaultGracePeriod); err != nil {
		return s, err
	}
	if s.AlarmTimeout, err = ParseDurationOrDefault("scheduler.alarm_timeout", c.AlarmTimeout, DefaultAlarmTimeout); err != nil {
		return s, err
	}
	if s.AlarmTimeout > MaxAlarmTimeout {
		s.AlarmTimeout = MaxAlarmTimeout
	}
	if s.MissedTaskMaxAge, err = ParseDurationOrDefault("scheduler.missed_task_max_age", c.MissedTaskMaxAge, DefaultMissedTaskMaxAge); err != nil {
		return s, err
	}

	if s.DefaultSnoozeMinutes <= 0 {
		s.DefaultSnoozeMinutes = DefaultSnoozeMinutes
	}
	if s.MaxSnoozeMinutes <= 0 {
		s.MaxSnoozeMinutes = DefaultMaxSnoozeMinutes
	}
	if s.DefaultSnoozeMinutes > s.MaxSnoozeMinutes {
		s.DefaultSnoozeMinutes = s.MaxSnoozeMinutes
	}
	if s.MaxSnoozeCount <= 0 {
		s.MaxSnoozeCount = DefaultMaxSnoozeCount
	}
	if s.AlarmVolumePct <= 0 {
		s.AlarmVolumePct = DefaultAlarmVolumePct
	}
	if s.AlarmVolumePct > 100 {
		s.AlarmVolumePct = 100
	}
	if s.RetentionDays <= 0 {
		s.RetentionDays = DefaultRetentionDays
	}
	if s.MaxEventsPerUser <= 0 {
		s.MaxEventsPerUser = DefaultMaxEventsPerUser
	}
	if s.MaxEventsTotal <= 0 {
		s.MaxEventsTotal = DefaultMaxEventsTotal
	}

	s.MissedEventRecovery = true
	if c.MissedEventRecovery != nil {
		s.MissedEventRecovery = *c.MissedEventRecovery
	}

	switch p := strings.ToLower(strings.TrimSpace(c.MissedTaskPolicy)); p {
	case "", "skip":
		s.MissedTaskPolicy = "skip"
	case "execute":
		s.MissedTaskPolicy = "execute"
	default:
		return s, fmt.Errorf("scheduler.missed_task_policy: unknown policy %q (want \"skip\" or \"execute\")", c.MissedTaskPolicy)
	}

	return s, nil
}

// BusyTimeoutOrDefault parses storage.busy_timeout with the sqlite default.
func (c StorageConfig) BusyTimeoutOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, DefaultSQLiteBusyTimeout)
}

// Validate checks the whole config tree. Used both at startup and as the
// reload validator so a broken edit never reaches subscribers.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := c.Scheduler.Resolve(); err != nil {
		return err
	}
	if _, err := c.Storage.BusyTimeoutOrDefault(); err != nil {
		return err
	}
	if c.Scheduler.Enabled && strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path: required when scheduler is enabled")
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	return nil
}
