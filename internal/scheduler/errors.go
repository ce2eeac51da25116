package scheduler

import "errors"

var (
	// ErrNoRinging means dismiss/snooze was requested while nothing rings.
	ErrNoRinging = errors.New("no event is ringing")

	errBadClock = errors.New("invalid clock time")
)
