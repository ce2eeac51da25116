package scheduler

import (
	"context"
	"time"

	"github.com/malcolmhoward/dawn-sub001/internal/eventbus"
	"github.com/malcolmhoward/dawn-sub001/internal/storage"
	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

// recoverMissed handles events whose fire time passed while the daemon was
// down. Runs once at startup, after the grace period.
//
// Timers and reminders fire late; the user still wants to hear them.
// Alarms go to missed instead of blaring at an arbitrary wall time, and a
// recurring alarm gets its next occurrence. Tasks follow MissedTaskPolicy:
// "execute" runs them if they are younger than MissedTaskMaxAge, "skip"
// marks them missed.
func (e *Engine) recoverMissed(ctx context.Context) {
	settings, _ := e.snapshot()
	now := time.Now()

	missed, err := e.store.MissedEvents(ctx, now, recoveryBatch)
	if err != nil {
		e.log.Error("missed event query failed", logx.Err(err))
		return
	}
	if len(missed) == 0 {
		return
	}
	e.log.Info("recovering missed events", logx.Int("count", len(missed)))

	for _, ev := range missed {
		switch ev.Type {
		case storage.TypeTimer, storage.TypeReminder:
			e.fireEvent(ctx, ev)

		case storage.TypeAlarm:
			e.markMissed(ctx, ev)
			e.scheduleNextOccurrence(ctx, ev)

		case storage.TypeTask:
			age := now.Sub(ev.FireAt)
			if settings.MissedTaskPolicy == "execute" && age <= settings.MissedTaskMaxAge {
				e.fireEvent(ctx, ev)
				continue
			}
			e.log.Info("skipping missed task", logx.Int64("id", ev.ID),
				logx.String("tool", ev.ToolName), logx.Duration("age", age))
			e.markMissed(ctx, ev)
			e.scheduleNextOccurrence(ctx, ev)
		}
	}
}

func (e *Engine) markMissed(ctx context.Context, ev storage.ScheduledEvent) {
	if err := e.store.UpdateStatusFired(ctx, ev.ID, storage.StatusMissed, time.Now()); err != nil {
		e.log.Error("marking event missed failed", logx.Int64("id", ev.ID), logx.Err(err))
		return
	}
	ev.Status = storage.StatusMissed
	e.log.Info("event missed while offline",
		logx.Int64("id", ev.ID), logx.String("type", string(ev.Type)),
		logx.Time("was_due", ev.FireAt))
	e.publish(eventbus.TypeEventMissed, ev, "")
}
