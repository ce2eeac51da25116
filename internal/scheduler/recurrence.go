package scheduler

import (
	"strings"
	"time"

	"github.com/malcolmhoward/dawn-sub001/internal/storage"
)

// NextOccurrence computes when a recurring event should fire next after it
// reached a terminal state. ok=false for one-shot events or patterns that
// never match (should not happen for a validated event).
//
// The time of day comes from the event's OriginalTime ("HH:MM" in the user's
// local zone) so a snoozed or late-fired occurrence does not drift the series.
// Weekly advances exactly 7 calendar days; the other patterns scan forward up
// to 8 days for the next matching weekday.
//
// DST: candidates are built with time.Date in loc, so a nonexistent local
// time (spring-forward gap) normalizes past the gap and an ambiguous one
// (fall-back) resolves to the earlier instant.
func NextOccurrence(ev storage.ScheduledEvent, now time.Time, loc *time.Location) (time.Time, bool) {
	if ev.Recurrence == storage.RecurOnce || ev.Recurrence == "" {
		return time.Time{}, false
	}

	hour, minute, ok := parseClock(ev.OriginalTime)
	if !ok {
		local := ev.FireAt.In(loc)
		hour, minute = local.Hour(), local.Minute()
	}

	y, m, d := now.In(loc).Date()

	if ev.Recurrence == storage.RecurWeekly {
		return time.Date(y, m, d+7, hour, minute, 0, 0, loc), true
	}

	for days := 1; days <= 8; days++ {
		cand := time.Date(y, m, d+days, hour, minute, 0, 0, loc)
		if dayMatches(cand.Weekday(), ev.Recurrence, ev.RecurrenceDays) {
			return cand, true
		}
	}
	return time.Time{}, false
}

func dayMatches(wd time.Weekday, r storage.Recurrence, days string) bool {
	switch r {
	case storage.RecurDaily:
		return true
	case storage.RecurWeekdays:
		return wd >= time.Monday && wd <= time.Friday
	case storage.RecurWeekends:
		return wd == time.Saturday || wd == time.Sunday
	case storage.RecurCustom:
		want := strings.ToLower(wd.String()[:3])
		for _, tok := range strings.Split(days, ",") {
			if strings.ToLower(strings.TrimSpace(tok)) == want {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// parseClock reads the leading "HH:MM" of s. Longer tails like
// "07:30:00-05:00" are accepted; only hour and minute matter, and any zone
// suffix is deliberately ignored (the stored time is the user's local wall
// time for the series).
func parseClock(s string) (hour, minute int, ok bool) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, ':')
	if i <= 0 || len(s) < i+3 {
		return 0, 0, false
	}
	h, err1 := parseInt2(s[:i])
	m, err2 := parseInt2(s[i+1 : i+3])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func parseInt2(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errBadClock
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
