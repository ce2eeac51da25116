package scheduler

import (
	"testing"
	"time"
)

func TestParseFireTimeClockOnly(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "America/Chicago")
	now := time.Date(2026, 9, 4, 14, 0, 0, 0, loc)

	t.Run("later today stays today", func(t *testing.T) {
		got, err := ParseFireTime("18:30", now, loc)
		if err != nil {
			t.Fatalf("ParseFireTime: %v", err)
		}
		want := time.Date(2026, 9, 4, 18, 30, 0, 0, loc)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("already past rolls to tomorrow", func(t *testing.T) {
		got, err := ParseFireTime("07:00", now, loc)
		if err != nil {
			t.Fatalf("ParseFireTime: %v", err)
		}
		want := time.Date(2026, 9, 5, 7, 0, 0, 0, loc)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("exact now rolls to tomorrow", func(t *testing.T) {
		got, err := ParseFireTime("14:00", now, loc)
		if err != nil {
			t.Fatalf("ParseFireTime: %v", err)
		}
		if got.Day() != 5 {
			t.Errorf("got %v, want next day", got)
		}
	})
}

func TestParseFireTimeAbsolute(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "America/Chicago")
	now := time.Date(2026, 9, 4, 14, 0, 0, 0, loc)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-12-25T08:00:00", time.Date(2026, 12, 25, 8, 0, 0, 0, loc)},
		{"2026-12-25T08:00", time.Date(2026, 12, 25, 8, 0, 0, 0, loc)},
		{"2026-12-25", time.Date(2026, 12, 25, 0, 0, 0, 0, loc)},
		{"2026-12-25T08:00:00Z", time.Date(2026, 12, 25, 8, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, err := ParseFireTime(tc.in, now, loc)
		if err != nil {
			t.Errorf("ParseFireTime(%q): %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseFireTime(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "tomorrow", "25/12/2026", "2026-13-01"} {
		if _, err := ParseFireTime(bad, now, loc); err == nil {
			t.Errorf("ParseFireTime(%q) succeeded, want error", bad)
		}
	}
}

func TestOriginalClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"07:30", "07:30"},
		{"2026-12-25T08:15:00", "08:15"},
		{"2026-12-25T08:15:00-05:00", "08:15"},
		{"2026-12-25", ""},
		{"garbage", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := originalClock(tc.in); got != tc.want {
			t.Errorf("originalClock(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidateRecurrenceDays(t *testing.T) {
	t.Parallel()
	valid := []string{"mon", "mon,wed,fri", "SAT,SUN", " tue , thu "}
	for _, in := range valid {
		if err := ValidateRecurrenceDays(in); err != nil {
			t.Errorf("ValidateRecurrenceDays(%q) = %v, want nil", in, err)
		}
	}
	invalid := []string{"", ",", "monday", "mon,mon", "mon,funday"}
	for _, in := range invalid {
		if err := ValidateRecurrenceDays(in); err == nil {
			t.Errorf("ValidateRecurrenceDays(%q) = nil, want error", in)
		}
	}
}
