package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means no row matched the lookup.
	ErrNotFound = errors.New("event not found")

	// ErrRejected means a conditional update matched zero rows: the event's
	// current status did not satisfy the operation's precondition.
	ErrRejected = errors.New("event update rejected")

	// ErrUserLimit / ErrGlobalLimit are returned by InsertChecked when the
	// active-event caps are already reached.
	ErrUserLimit   = errors.New("per-user event limit reached")
	ErrGlobalLimit = errors.New("global event limit reached")
)

type EventType string

const (
	TypeTimer    EventType = "timer"
	TypeAlarm    EventType = "alarm"
	TypeReminder EventType = "reminder"
	TypeTask     EventType = "task"
)

func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case TypeTimer, TypeAlarm, TypeReminder, TypeTask:
		return t, nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRinging   Status = "ringing"
	StatusFired     Status = "fired"
	StatusCancelled Status = "cancelled"
	StatusSnoozed   Status = "snoozed"
	StatusMissed    Status = "missed"
	StatusDismissed Status = "dismissed"
	StatusTimedOut  Status = "timed_out"
)

// Active statuses count against the per-user and global caps and show up in
// listings. Terminal rows only wait for retention cleanup.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusSnoozed || s == StatusRinging
}

func (s Status) Terminal() bool {
	switch s {
	case StatusFired, StatusCancelled, StatusMissed, StatusDismissed, StatusTimedOut:
		return true
	}
	return false
}

type Recurrence string

const (
	RecurOnce     Recurrence = "once"
	RecurDaily    Recurrence = "daily"
	RecurWeekdays Recurrence = "weekdays"
	RecurWeekends Recurrence = "weekends"
	RecurWeekly   Recurrence = "weekly"
	RecurCustom   Recurrence = "custom"
)

func ParseRecurrence(s string) (Recurrence, error) {
	if s == "" {
		return RecurOnce, nil
	}
	switch r := Recurrence(s); r {
	case RecurOnce, RecurDaily, RecurWeekdays, RecurWeekends, RecurWeekly, RecurCustom:
		return r, nil
	}
	return "", fmt.Errorf("unknown recurrence %q", s)
}

// ScheduledEvent is one row of the event table.
//
// Zero time.Time values map to 0 in the database (SnoozedUntil, FiredAt).
// Instants are stored as Unix seconds, so sub-second precision is dropped
// on a round trip.
type ScheduledEvent struct {
	ID     int64
	UserID int64
	Type   EventType
	Status Status

	Name    string
	Message string

	FireAt       time.Time
	CreatedAt    time.Time
	DurationSec  int
	SnoozedUntil time.Time
	FiredAt      time.Time
	SnoozeCount  int

	Recurrence     Recurrence
	RecurrenceDays string // CSV of day names, for custom recurrence
	OriginalTime   string // "HH:MM" the user asked for; recurrence re-derives from this

	SourceUUID     string // satellite that created the event, for routing
	SourceLocation string
	AnnounceAll    bool

	// Task payload. Only meaningful for TypeTask.
	ToolName   string
	ToolAction string
	ToolValue  string
}
