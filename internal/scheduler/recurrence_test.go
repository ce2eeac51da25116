package scheduler

import (
	"testing"
	"time"

	"github.com/malcolmhoward/dawn-sub001/internal/storage"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("zone %s unavailable: %v", name, err)
	}
	return loc
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "America/New_York")

	// Friday 2026-09-04 18:00 local.
	now := time.Date(2026, 9, 4, 18, 0, 0, 0, loc)

	tests := []struct {
		name  string
		ev    storage.ScheduledEvent
		want  time.Time
		wantO bool
	}{
		{
			name:  "one-shot never recurs",
			ev:    storage.ScheduledEvent{Recurrence: storage.RecurOnce},
			wantO: false,
		},
		{
			name: "daily fires tomorrow at the original clock time",
			ev: storage.ScheduledEvent{
				Recurrence:   storage.RecurDaily,
				OriginalTime: "07:30",
			},
			want:  time.Date(2026, 9, 5, 7, 30, 0, 0, loc),
			wantO: true,
		},
		{
			name: "weekdays skips the weekend after friday",
			ev: storage.ScheduledEvent{
				Recurrence:   storage.RecurWeekdays,
				OriginalTime: "08:00",
			},
			want:  time.Date(2026, 9, 7, 8, 0, 0, 0, loc), // Monday
			wantO: true,
		},
		{
			name: "weekends lands on saturday",
			ev: storage.ScheduledEvent{
				Recurrence:   storage.RecurWeekends,
				OriginalTime: "10:00",
			},
			want:  time.Date(2026, 9, 5, 10, 0, 0, 0, loc),
			wantO: true,
		},
		{
			name: "weekly advances exactly seven days",
			ev: storage.ScheduledEvent{
				Recurrence:   storage.RecurWeekly,
				OriginalTime: "06:45",
			},
			want:  time.Date(2026, 9, 11, 6, 45, 0, 0, loc),
			wantO: true,
		},
		{
			name: "custom days finds the next listed weekday",
			ev: storage.ScheduledEvent{
				Recurrence:     storage.RecurCustom,
				RecurrenceDays: "tue,thu",
				OriginalTime:   "09:15",
			},
			want:  time.Date(2026, 9, 8, 9, 15, 0, 0, loc), // Tuesday
			wantO: true,
		},
		{
			name: "clock falls back to the stored fire time",
			ev: storage.ScheduledEvent{
				Recurrence: storage.RecurDaily,
				FireAt:     time.Date(2026, 9, 4, 13, 20, 0, 0, loc),
			},
			want:  time.Date(2026, 9, 5, 13, 20, 0, 0, loc),
			wantO: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := NextOccurrence(tc.ev, now, loc)
			if ok != tc.wantO {
				t.Fatalf("ok = %v, want %v", ok, tc.wantO)
			}
			if ok && !got.Equal(tc.want) {
				t.Errorf("next = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNextOccurrenceSpringForwardGap(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "America/New_York")

	// 2026-03-08 has no 02:30 local; clocks jump 02:00 -> 03:00.
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, loc)
	ev := storage.ScheduledEvent{
		Recurrence:   storage.RecurDaily,
		OriginalTime: "02:30",
	}

	got, ok := NextOccurrence(ev, now, loc)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2026, 3, 8, 3, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("next = %v, want normalized %v", got, want)
	}
	if got.Day() != 8 {
		t.Errorf("occurrence skipped a day: %v", got)
	}
}

func TestNextOccurrenceFallBackStaysOnClock(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "America/New_York")

	// Clocks fall back on 2026-11-01; the 07:00 series must stay at 07:00
	// local, not drift by the offset change.
	now := time.Date(2026, 10, 31, 12, 0, 0, 0, loc)
	ev := storage.ScheduledEvent{
		Recurrence:   storage.RecurDaily,
		OriginalTime: "07:00",
	}

	got, ok := NextOccurrence(ev, now, loc)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	if got.Hour() != 7 || got.Minute() != 0 {
		t.Errorf("clock drifted: %v", got)
	}
	if got.Day() != 1 || got.Month() != time.November {
		t.Errorf("wrong date: %v", got)
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		hour    int
		minute  int
		ok      bool
	}{
		{"07:30", 7, 30, true},
		{"23:59", 23, 59, true},
		{"0:05", 0, 5, true},
		{"07:30:00-05:00", 7, 30, true}, // zone tail ignored
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"noon", 0, 0, false},
		{"", 0, 0, false},
		{":30", 0, 0, false},
	}
	for _, tc := range tests {
		h, m, ok := parseClock(tc.in)
		if ok != tc.ok || h != tc.hour || m != tc.minute {
			t.Errorf("parseClock(%q) = (%d, %d, %v), want (%d, %d, %v)",
				tc.in, h, m, ok, tc.hour, tc.minute, tc.ok)
		}
	}
}
