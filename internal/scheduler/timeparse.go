package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// MaxDurationMinutes caps relative offsets at 30 days.
const MaxDurationMinutes = 43200

const (
	maxNameLen    = 128
	maxMessageLen = 512
	maxUUIDLen    = 36
)

// ParseFireTime accepts an absolute ISO-8601 instant or a bare "HH:MM".
//
// A time-only value means "next occurrence of that wall time": today if it
// is still ahead, otherwise tomorrow. ISO values without a zone suffix are
// interpreted in loc. The next-day roll uses calendar arithmetic, so across
// a DST change "07:00" stays 07:00 on the clock rather than shifting by the
// offset delta.
func ParseFireTime(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty fire time")
	}

	if len(s) <= 5 && strings.ContainsRune(s, ':') {
		hour, minute, ok := parseClock(s)
		if !ok {
			return time.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", s)
		}
		y, m, d := now.In(loc).Date()
		t := time.Date(y, m, d, hour, minute, 0, 0, loc)
		if !t.After(now) {
			t = time.Date(y, m, d+1, hour, minute, 0, 0, loc)
		}
		return t, nil
	}

	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid fire time %q (want ISO 8601 or HH:MM)", s)
}

// originalClock extracts the literal "HH:MM" the user asked for, which seeds
// the recurrence series. Zone suffixes are ignored on purpose: the series
// follows the user's wall clock, not a fixed UTC offset.
func originalClock(fireAtInput string) string {
	s := strings.TrimSpace(fireAtInput)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[i+1:]
	} else if len(s) > 5 {
		return ""
	}
	if len(s) >= 5 {
		s = s[:5]
	}
	if _, _, ok := parseClock(s); !ok {
		return ""
	}
	return s
}

var dayNames = []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// ValidateRecurrenceDays checks a CSV of three-letter day names.
// Unknown names and duplicates are rejected; at least one day is required.
func ValidateRecurrenceDays(csv string) error {
	var seen [7]bool
	count := 0
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		idx := -1
		for d, name := range dayNames {
			if tok == name {
				idx = d
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("invalid day %q (want sun,mon,tue,wed,thu,fri,sat)", tok)
		}
		if seen[idx] {
			return fmt.Errorf("duplicate day %q", tok)
		}
		seen[idx] = true
		count++
	}
	if count == 0 {
		return fmt.Errorf("at least one day is required")
	}
	return nil
}
