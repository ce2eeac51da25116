package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

func TestParseJSONStrict(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "cfg.json", `{
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"storage": {"path": "./events.db", "busy_timeout": "3s"},
		"scheduler": {"enabled": true, "default_snooze_minutes": 5}
	}`)

	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Scheduler.Enabled {
		t.Fatalf("scheduler.enabled = false, want true")
	}
	if cfg.Scheduler.DefaultSnoozeMinutes != 5 {
		t.Fatalf("default_snooze_minutes = %d, want 5", cfg.Scheduler.DefaultSnoozeMinutes)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get() did not return committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "cfg.json", `{"scheduler": {"enabled": true, "wat": 1}, "logging": {}, "storage": {"path": "x"}}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatalf("Parse accepted unknown field")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	p := writeTemp(t, "cfg.yaml", `
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: ./events.db
scheduler:
  enabled: true
  alarm_timeout: 90s
  timezone: UTC
`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s, err := cfg.Scheduler.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.AlarmTimeout != 90*time.Second {
		t.Fatalf("AlarmTimeout = %v, want 90s", s.AlarmTimeout)
	}
	if s.Timezone != "UTC" {
		t.Fatalf("Timezone = %q, want UTC", s.Timezone)
	}
}

func TestSchedulerResolveDefaults(t *testing.T) {
	t.Parallel()

	s, err := SchedulerConfig{Enabled: true}.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.GracePeriod != DefaultGracePeriod {
		t.Errorf("GracePeriod = %v, want %v", s.GracePeriod, DefaultGracePeriod)
	}
	if s.DefaultSnoozeMinutes != DefaultSnoozeMinutes {
		t.Errorf("DefaultSnoozeMinutes = %d, want %d", s.DefaultSnoozeMinutes, DefaultSnoozeMinutes)
	}
	if s.AlarmTimeout != DefaultAlarmTimeout {
		t.Errorf("AlarmTimeout = %v, want %v", s.AlarmTimeout, DefaultAlarmTimeout)
	}
	if s.AlarmVolumePct != DefaultAlarmVolumePct {
		t.Errorf("AlarmVolumePct = %d, want %d", s.AlarmVolumePct, DefaultAlarmVolumePct)
	}
	if !s.MissedEventRecovery {
		t.Errorf("MissedEventRecovery = false, want true by default")
	}
	if s.MissedTaskPolicy != "skip" {
		t.Errorf("MissedTaskPolicy = %q, want skip", s.MissedTaskPolicy)
	}
}

func TestSchedulerResolveClamps(t *testing.T) {
	t.Parallel()

	s, err := SchedulerConfig{
		AlarmTimeout:   "30m",
		AlarmVolumePct: 250,
	}.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.AlarmTimeout != MaxAlarmTimeout {
		t.Errorf("AlarmTimeout = %v, want clamped to %v", s.AlarmTimeout, MaxAlarmTimeout)
	}
	if s.AlarmVolumePct != 100 {
		t.Errorf("AlarmVolumePct = %d, want clamped to 100", s.AlarmVolumePct)
	}
}

func TestSchedulerResolveBadPolicy(t *testing.T) {
	t.Parallel()

	if _, err := (SchedulerConfig{MissedTaskPolicy: "maybe"}).Resolve(); err == nil {
		t.Fatalf("Resolve accepted unknown missed_task_policy")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "ok",
			cfg: Config{
				Storage:   StorageConfig{Path: "./events.db"},
				Scheduler: SchedulerConfig{Enabled: true},
			},
		},
		{
			name:    "missing storage path",
			cfg:     Config{Scheduler: SchedulerConfig{Enabled: true}},
			wantErr: true,
		},
		{
			name: "bad timezone",
			cfg: Config{
				Storage:   StorageConfig{Path: "x"},
				Scheduler: SchedulerConfig{Enabled: true, Timezone: "Mars/Olympus"},
			},
			wantErr: true,
		},
		{
			name: "bad duration",
			cfg: Config{
				Storage:   StorageConfig{Path: "x"},
				Scheduler: SchedulerConfig{Enabled: true, GracePeriod: "soon"},
			},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Scheduler: SchedulerConfig{Enabled: true, AlarmVolumePct: 80}}
	newCfg := &Config{Scheduler: SchedulerConfig{Enabled: true, AlarmVolumePct: 50}}

	changed, _ := SummarizeChange(oldCfg, newCfg)
	if len(changed) != 1 || changed[0] != "scheduler" {
		t.Fatalf("changed = %v, want [scheduler]", changed)
	}

	changed, _ = SummarizeChange(newCfg, newCfg)
	if len(changed) != 0 {
		t.Fatalf("changed = %v, want empty for identical configs", changed)
	}
}
