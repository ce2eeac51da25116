package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/malcolmhoward/dawn-sub001/internal/audio"
	"github.com/malcolmhoward/dawn-sub001/internal/eventbus"
	"github.com/malcolmhoward/dawn-sub001/internal/storage"
	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

// startSound launches the audio worker for a ringing event. Alarms loop a
// tone until dismissed, snoozed, or timed out; timers and reminders play a
// single chime and then auto-dismiss.
func (e *Engine) startSound(ev storage.ScheduledEvent) {
	e.soundMu.Lock()
	if e.soundCancel != nil {
		e.soundCancel()
		done := e.soundDone
		e.soundMu.Unlock()
		<-done
		e.soundMu.Lock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.soundCancel = cancel
	e.soundDone = done
	e.soundMu.Unlock()

	go func() {
		defer close(done)
		if ev.Type == storage.TypeAlarm {
			e.alarmLoop(ctx, ev)
		} else {
			e.chimeOnce(ctx, ev)
		}
	}()
}

// stopSound cancels the running audio worker and waits for it to exit.
func (e *Engine) stopSound() {
	e.soundMu.Lock()
	cancel := e.soundCancel
	done := e.soundDone
	e.soundCancel = nil
	e.soundDone = nil
	e.soundMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// alarmLoop plays the alarm tone with short gaps until cancellation or the
// configured timeout. On timeout the alarm transitions to timed_out and a
// recurring alarm still gets its successor.
func (e *Engine) alarmLoop(ctx context.Context, ev storage.ScheduledEvent) {
	settings, _ := e.snapshot()

	tone := audio.Tone(alarmToneFreq, alarmToneLen, settings.AlarmVolumePct)
	deadline := time.Now().Add(settings.AlarmTimeout)

	for time.Now().Before(deadline) {
		if err := e.audio.Play(ctx, tone); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.log.Warn("alarm playback failed", logx.Int64("id", ev.ID), logx.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(alarmGap):
		}
	}

	// Timeout path. Detached context so shutdown of the sound worker does
	// not lose the state transition.
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dbCancel()

	if e.clearRingingIf(ev.ID) == nil {
		return
	}
	e.log.Info("alarm timed out unacknowledged",
		logx.Int64("id", ev.ID), logx.Duration("timeout", settings.AlarmTimeout))

	if err := e.store.UpdateStatus(dbCtx, ev.ID, storage.StatusTimedOut); err != nil {
		e.log.Error("timeout status update failed", logx.Int64("id", ev.ID), logx.Err(err))
		return
	}
	ev.Status = storage.StatusTimedOut
	e.publish(eventbus.TypeEventTimedOut, ev, "")
	e.scheduleNextOccurrence(dbCtx, ev)
}

// chimeOnce plays the completion chime and auto-dismisses the event unless a
// user beat it to dismiss or snooze.
func (e *Engine) chimeOnce(ctx context.Context, ev storage.ScheduledEvent) {
	settings, _ := e.snapshot()

	chime := audio.Tone(chimeFreq, chimeLen, settings.AlarmVolumePct)
	if err := e.audio.Play(ctx, chime); err != nil && ctx.Err() == nil {
		e.log.Warn("chime playback failed", logx.Int64("id", ev.ID), logx.Err(err))
	}
	if ctx.Err() != nil {
		return
	}

	if e.clearRingingIf(ev.ID) == nil {
		return
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dbCancel()

	if err := e.store.Dismiss(dbCtx, ev.ID, time.Now()); err != nil {
		if !errors.Is(err, storage.ErrRejected) {
			e.log.Error("auto-dismiss failed", logx.Int64("id", ev.ID), logx.Err(err))
		}
		return
	}
	ev.Status = storage.StatusDismissed
	e.publish(eventbus.TypeEventDismissed, ev, "")
	e.scheduleNextOccurrence(dbCtx, ev)
}
