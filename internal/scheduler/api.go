package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/malcolmhoward/dawn-sub001/internal/eventbus"
	"github.com/malcolmhoward/dawn-sub001/internal/storage"
	"github.com/malcolmhoward/dawn-sub001/internal/tools"
	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

// Code classifies an API result for programmatic callers. Text carries the
// phrase handed to the voice pipeline, so it is always safe to speak.
type Code int

const (
	CodeOK Code = iota
	CodeInvalid
	CodeNotFound
	CodeNoRinging
	CodeUserLimit
	CodeGlobalLimit
	CodeStorage
)

type Result struct {
	Code  Code
	Text  string
	Event *storage.ScheduledEvent
}

func okResult(text string, ev *storage.ScheduledEvent) Result {
	return Result{Code: CodeOK, Text: text, Event: ev}
}

func invalid(format string, args ...any) Result {
	return Result{Code: CodeInvalid, Text: "Error: " + fmt.Sprintf(format, args...)}
}

// CreateRequest carries everything needed to schedule an event. Exactly one
// of DurationMinutes (>0) or FireAt must be set; DurationMinutes wins when
// both are present.
type CreateRequest struct {
	UserID          int64
	Type            string
	Name            string
	Message         string
	DurationMinutes int
	FireAt          string // ISO 8601 or "HH:MM"
	Recurrence      string
	RecurrenceDays  string
	SourceUUID      string
	SourceLocation  string
	AnnounceAll     bool
	ToolName        string
	ToolAction      string
	ToolValue       string
}

// Create validates the request, applies the event caps, and schedules the
// event. The result text reports both the fire time and the current time so
// a relaying model cannot misstate either.
func (e *Engine) Create(ctx context.Context, req CreateRequest) Result {
	settings, loc := e.snapshot()

	if req.Type == "" {
		return invalid("'type' is required (timer, alarm, reminder, task)")
	}
	typ, err := storage.ParseEventType(req.Type)
	if err != nil {
		return invalid("unknown event type '%s' (want timer, alarm, reminder, task)", req.Type)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = string(typ)
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	message := req.Message
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}

	// Satellite identities are opaque strings, not necessarily RFC 4122;
	// they are length-capped, never format-checked.
	sourceUUID := req.SourceUUID
	if len(sourceUUID) > maxUUIDLen {
		sourceUUID = sourceUUID[:maxUUIDLen]
	}

	now := time.Now()
	ev := storage.ScheduledEvent{
		UserID:         req.UserID,
		Type:           typ,
		Status:         storage.StatusPending,
		Name:           name,
		Message:        message,
		Recurrence:     storage.RecurOnce,
		SourceUUID:     sourceUUID,
		SourceLocation: req.SourceLocation,
		AnnounceAll:    req.AnnounceAll,
	}

	if req.DurationMinutes > MaxDurationMinutes {
		return invalid("duration cannot exceed %d minutes (30 days)", MaxDurationMinutes)
	}
	switch {
	case req.DurationMinutes > 0:
		ev.FireAt = now.Add(time.Duration(req.DurationMinutes) * time.Minute)
		ev.DurationSec = req.DurationMinutes * 60
	case req.FireAt != "":
		fireAt, err := ParseFireTime(req.FireAt, now, loc)
		if err != nil {
			return invalid("invalid fire_at format '%s'", req.FireAt)
		}
		if !fireAt.After(now) {
			return invalid("fire_at must be in the future")
		}
		if fireAt.After(now.AddDate(1, 0, 0)) {
			return invalid("fire_at must be within 1 year")
		}
		ev.FireAt = fireAt
		ev.OriginalTime = originalClock(req.FireAt)
	default:
		if typ == storage.TypeTimer {
			return invalid("'duration_minutes' is required for timers")
		}
		return invalid("'fire_at' (ISO 8601) or 'duration_minutes' is required for %s", typ)
	}

	if req.Recurrence != "" {
		recur, err := storage.ParseRecurrence(req.Recurrence)
		if err != nil {
			return invalid("unknown recurrence '%s'", req.Recurrence)
		}
		ev.Recurrence = recur
	}
	if req.RecurrenceDays != "" {
		if err := ValidateRecurrenceDays(req.RecurrenceDays); err != nil {
			return invalid("invalid recurrence_days '%s'. Use CSV of: sun,mon,tue,wed,thu,fri,sat",
				req.RecurrenceDays)
		}
		ev.RecurrenceDays = req.RecurrenceDays
	}
	if ev.Recurrence == storage.RecurCustom && ev.RecurrenceDays == "" {
		return invalid("'recurrence_days' is required for custom recurrence")
	}

	if typ == storage.TypeTask && req.ToolName == "" {
		return invalid("'tool_name' is required for scheduled tasks")
	}
	if req.ToolName != "" {
		if e.registry == nil {
			return invalid("unknown tool '%s'", req.ToolName)
		}
		tool, _, err := e.registry.Lookup(req.ToolName)
		if err != nil {
			return invalid("unknown tool '%s'", req.ToolName)
		}
		if !tool.Caps.Has(tools.CapSchedulable) {
			return invalid("tool '%s' is not schedulable", req.ToolName)
		}
		ev.ToolName = tool.Name
		ev.ToolAction = req.ToolAction
		ev.ToolValue = req.ToolValue
	}

	err = e.store.InsertChecked(ctx, &ev, settings.MaxEventsPerUser, settings.MaxEventsTotal)
	switch {
	case errors.Is(err, storage.ErrUserLimit):
		return Result{Code: CodeUserLimit, Text: fmt.Sprintf(
			"Error: maximum events per user reached (%d). Cancel some events first.",
			settings.MaxEventsPerUser)}
	case errors.Is(err, storage.ErrGlobalLimit):
		return Result{Code: CodeGlobalLimit, Text: fmt.Sprintf(
			"Error: maximum total events reached (%d).", settings.MaxEventsTotal)}
	case err != nil:
		e.log.Error("event insert failed", logx.Err(err))
		return Result{Code: CodeStorage, Text: "Error: failed to create event"}
	}

	e.Notify()
	e.publish(eventbus.TypeEventCreated, ev, "")
	e.log.Info("event created", logx.Int64("id", ev.ID),
		logx.String("type", string(typ)), logx.String("name", ev.Name),
		logx.Time("fire_at", ev.FireAt))

	nowStr := now.In(loc).Format("03:04 PM")
	fireStr := ev.FireAt.In(loc).Format("03:04 PM on Jan 2")

	var text string
	if typ == storage.TypeTimer {
		text = fmt.Sprintf("%s timer set for %s (fires at %s). Current time: %s.",
			ev.Name, durationPhrase(req.DurationMinutes), fireStr, nowStr)
	} else {
		text = fmt.Sprintf("%s '%s' set for %s. Current time: %s.", typ, ev.Name, fireStr, nowStr)
	}
	return okResult(text, &ev)
}

// List describes a user's active events. typeFilter narrows to one event
// type; empty means all.
func (e *Engine) List(ctx context.Context, userID int64, typeFilter string) Result {
	_, loc := e.snapshot()

	var typ storage.EventType
	if typeFilter != "" {
		t, err := storage.ParseEventType(typeFilter)
		if err != nil {
			return invalid("unknown event type '%s'", typeFilter)
		}
		typ = t
	}

	events, err := e.store.ListUserEvents(ctx, userID, typ, fireBatchSize*5)
	if err != nil {
		e.log.Error("event listing failed", logx.Err(err))
		return Result{Code: CodeStorage, Text: "Error: failed to list events"}
	}
	if len(events) == 0 {
		if typeFilter != "" {
			return okResult("No active events of that type.", nil)
		}
		return okResult("No active timers, alarms, or reminders.", nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active events (%d):\n", len(events))
	now := time.Now()
	for _, ev := range events {
		if ev.Type == storage.TypeTimer {
			remaining := int(ev.FireAt.Sub(now).Seconds())
			if remaining < 0 {
				remaining = 0
			}
			fmt.Fprintf(&b, "- [%s] %s: %dm %ds remaining\n", ev.Type, ev.Name,
				remaining/60, remaining%60)
			continue
		}
		fmt.Fprintf(&b, "- [%s] %s: %s", ev.Type, ev.Name,
			ev.FireAt.In(loc).Format("03:04 PM Jan 2"))
		if ev.Recurrence != storage.RecurOnce {
			fmt.Fprintf(&b, " (%s)", ev.Recurrence)
		}
		b.WriteString("\n")
	}
	return okResult(b.String(), nil)
}

// Cancel removes a pending or snoozed event by id or name. Ownership is
// enforced: an id belonging to another user reads as not found.
func (e *Engine) Cancel(ctx context.Context, userID, eventID int64, name string) Result {
	ev, res := e.resolveEvent(ctx, userID, eventID, name, "cancel")
	if res != nil {
		return *res
	}

	if err := e.store.Cancel(ctx, ev.ID); err != nil {
		if errors.Is(err, storage.ErrRejected) {
			return Result{Code: CodeInvalid, Text: fmt.Sprintf(
				"Could not cancel '%s' (may have already fired).", ev.Name)}
		}
		e.log.Error("event cancel failed", logx.Int64("id", ev.ID), logx.Err(err))
		return Result{Code: CodeStorage, Text: "Error: failed to cancel event"}
	}
	ev.Status = storage.StatusCancelled

	e.log.Info("event cancelled", logx.Int64("id", ev.ID), logx.String("name", ev.Name))
	e.publish(eventbus.TypeEventCancelled, ev, "")
	e.Notify()
	return okResult(fmt.Sprintf("Cancelled %s '%s'.", ev.Type, ev.Name), &ev)
}

// Query reports time remaining for timers, or the fire time and status for
// everything else.
func (e *Engine) Query(ctx context.Context, userID, eventID int64, name string) Result {
	_, loc := e.snapshot()

	ev, res := e.resolveEvent(ctx, userID, eventID, name, "query")
	if res != nil {
		return *res
	}

	if ev.Type == storage.TypeTimer {
		remaining := int(time.Until(ev.FireAt).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		h, m, s := remaining/3600, (remaining%3600)/60, remaining%60
		var text string
		switch {
		case h > 0:
			text = fmt.Sprintf("%s has %s, %s, and %s left.",
				ev.Name, plural(h, "hour"), plural(m, "minute"), plural(s, "second"))
		case m > 0:
			text = fmt.Sprintf("%s has %s and %s left.",
				ev.Name, plural(m, "minute"), plural(s, "second"))
		default:
			text = fmt.Sprintf("%s has %s left.", ev.Name, plural(s, "second"))
		}
		return okResult(text, &ev)
	}

	return okResult(fmt.Sprintf("%s '%s' is set for %s. Status: %s.",
		ev.Type, ev.Name, ev.FireAt.In(loc).Format("03:04 PM on Jan 2"), ev.Status), &ev)
}

// SnoozeRinging snoozes whatever is ringing. minutes outside (0, max] means
// "use the default".
func (e *Engine) SnoozeRinging(ctx context.Context, minutes int) Result {
	settings, _ := e.snapshot()
	if minutes < 0 || minutes > settings.MaxSnoozeMinutes {
		minutes = 0
	}

	ev, snoozed, err := e.Snooze(ctx, minutes)
	if err != nil {
		if errors.Is(err, ErrNoRinging) {
			return Result{Code: CodeNoRinging, Text: "No alarm is currently ringing to snooze."}
		}
		e.log.Error("snooze failed", logx.Err(err))
		return Result{Code: CodeStorage, Text: "Error: failed to snooze"}
	}
	if !snoozed {
		return okResult("Dismissed (max snooze reached).", &ev)
	}
	actual := minutes
	if actual <= 0 {
		actual = settings.DefaultSnoozeMinutes
	}
	return okResult(fmt.Sprintf("Snoozed for %s.", plural(actual, "minute")), &ev)
}

// DismissRinging stops the ringing event. eventID 0 targets whatever rings.
func (e *Engine) DismissRinging(ctx context.Context, eventID int64) Result {
	ev, err := e.Dismiss(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrNoRinging) {
			return Result{Code: CodeNoRinging, Text: "No alarm is currently ringing to dismiss."}
		}
		e.log.Error("dismiss failed", logx.Err(err))
		return Result{Code: CodeStorage, Text: "Error: failed to dismiss"}
	}
	return okResult("Alarm dismissed.", &ev)
}

// resolveEvent looks an event up by id (with ownership check) or by name.
// Returns a non-nil Result on failure.
func (e *Engine) resolveEvent(ctx context.Context, userID, eventID int64, name, verb string) (storage.ScheduledEvent, *Result) {
	switch {
	case eventID > 0:
		ev, err := e.store.Get(ctx, eventID)
		if err != nil || ev.UserID != userID {
			r := Result{Code: CodeNotFound, Text: "Error: event not found"}
			return storage.ScheduledEvent{}, &r
		}
		return ev, nil
	case name != "":
		ev, err := e.store.FindByName(ctx, userID, name)
		if err != nil {
			r := Result{Code: CodeNotFound, Text: fmt.Sprintf("No active event named '%s' found.", name)}
			return storage.ScheduledEvent{}, &r
		}
		return ev, nil
	default:
		r := invalid("'event_id' or 'name' required to %s", verb)
		return storage.ScheduledEvent{}, &r
	}
}

// durationPhrase renders minutes as spoken hours and minutes.
func durationPhrase(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h > 0 && m > 0:
		return plural(h, "hour") + " and " + plural(m, "minute")
	case h > 0:
		return plural(h, "hour")
	default:
		return plural(m, "minute")
	}
}
