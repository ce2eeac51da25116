package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/malcolmhoward/dawn-sub001/internal/eventbus"
	"github.com/malcolmhoward/dawn-sub001/internal/storage"
	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

func (e *Engine) setRinging(ev storage.ScheduledEvent) {
	e.ringMu.Lock()
	if e.ringing != nil {
		// A later event replaces the marker. The displaced event stays
		// ringing in the store; only the marked event answers Dismiss and
		// Snooze, so the displaced row waits for startup recovery.
		e.log.Warn("replacing ringing marker",
			logx.Int64("old_id", e.ringing.ID), logx.Int64("new_id", ev.ID))
	}
	cp := ev
	e.ringing = &cp
	e.ringMu.Unlock()
}

// clearRingingIf drops the marker when it still points at id (0 matches any).
// Returns the cleared event.
func (e *Engine) clearRingingIf(id int64) *storage.ScheduledEvent {
	e.ringMu.Lock()
	defer e.ringMu.Unlock()
	if e.ringing == nil {
		return nil
	}
	if id != 0 && e.ringing.ID != id {
		return nil
	}
	ev := e.ringing
	e.ringing = nil
	return ev
}

// RingingEvent returns a copy of the event currently ringing, if any.
func (e *Engine) RingingEvent() (storage.ScheduledEvent, bool) {
	e.ringMu.Lock()
	defer e.ringMu.Unlock()
	if e.ringing == nil {
		return storage.ScheduledEvent{}, false
	}
	return *e.ringing, true
}

// RingingEvents lists every event stored as ringing, oldest fire first. The
// in-memory marker only tracks the latest; the store view is for HUDs that
// show all unacknowledged events.
func (e *Engine) RingingEvents(ctx context.Context) ([]storage.ScheduledEvent, error) {
	return e.store.Ringing(ctx, fireBatchSize)
}

// ActiveTimers lists pending/snoozed timers created from the given satellite.
func (e *Engine) ActiveTimers(ctx context.Context, sourceUUID string) ([]storage.ScheduledEvent, error) {
	return e.store.ActiveTimersByUUID(ctx, sourceUUID, fireBatchSize)
}

// Dismiss stops the ringing event. id 0 means "whatever is ringing".
// Returns the dismissed event. ErrNoRinging when the marker is empty or
// names a different event.
func (e *Engine) Dismiss(ctx context.Context, id int64) (storage.ScheduledEvent, error) {
	ev := e.clearRingingIf(id)
	if ev == nil {
		return storage.ScheduledEvent{}, ErrNoRinging
	}
	e.stopSound()

	if err := e.store.Dismiss(ctx, ev.ID, time.Now()); err != nil {
		if errors.Is(err, storage.ErrRejected) {
			// Already left the ringing state (auto-dismiss or timeout won).
			e.log.Debug("dismiss raced with another transition", logx.Int64("id", ev.ID))
			return *ev, nil
		}
		return storage.ScheduledEvent{}, err
	}
	ev.Status = storage.StatusDismissed

	e.log.Info("event dismissed", logx.Int64("id", ev.ID), logx.String("name", ev.Name))
	e.publish(eventbus.TypeEventDismissed, *ev, "")
	e.scheduleNextOccurrence(ctx, *ev)
	return *ev, nil
}

// Snooze reschedules the ringing event by minutes (0 or negative selects the
// configured default, values above the cap are clamped). When the event has
// exhausted its snooze budget it is dismissed instead; the bool result is
// true when a snooze actually happened and false for the forced dismissal.
func (e *Engine) Snooze(ctx context.Context, minutes int) (storage.ScheduledEvent, bool, error) {
	settings, _ := e.snapshot()

	e.ringMu.Lock()
	if e.ringing == nil {
		e.ringMu.Unlock()
		return storage.ScheduledEvent{}, false, ErrNoRinging
	}
	ev := *e.ringing
	e.ringMu.Unlock()

	if ev.SnoozeCount >= settings.MaxSnoozeCount {
		e.log.Info("snooze limit reached; dismissing",
			logx.Int64("id", ev.ID), logx.Int("count", ev.SnoozeCount))
		dismissed, err := e.Dismiss(ctx, ev.ID)
		if err != nil {
			return storage.ScheduledEvent{}, false, err
		}
		return dismissed, false, nil
	}

	if minutes <= 0 {
		minutes = settings.DefaultSnoozeMinutes
	}
	if minutes > settings.MaxSnoozeMinutes {
		minutes = settings.MaxSnoozeMinutes
	}
	newFire := time.Now().Add(time.Duration(minutes) * time.Minute)

	if err := e.store.Snooze(ctx, ev.ID, newFire); err != nil {
		if errors.Is(err, storage.ErrRejected) {
			return storage.ScheduledEvent{}, false, ErrNoRinging
		}
		return storage.ScheduledEvent{}, false, err
	}

	e.clearRingingIf(ev.ID)
	e.stopSound()

	ev.Status = storage.StatusSnoozed
	ev.FireAt = newFire
	ev.SnoozedUntil = newFire
	ev.SnoozeCount++

	e.log.Info("event snoozed", logx.Int64("id", ev.ID),
		logx.Int("minutes", minutes), logx.Time("fire_at", newFire))
	e.publish(eventbus.TypeEventSnoozed, ev, "")
	e.Notify()
	return ev, true, nil
}
