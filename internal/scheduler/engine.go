package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/malcolmhoward/dawn-sub001/internal/audio"
	"github.com/malcolmhoward/dawn-sub001/internal/config"
	"github.com/malcolmhoward/dawn-sub001/internal/eventbus"
	"github.com/malcolmhoward/dawn-sub001/internal/notify"
	"github.com/malcolmhoward/dawn-sub001/internal/storage"
	"github.com/malcolmhoward/dawn-sub001/internal/tools"
	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

const (
	fireBatchSize    = 10
	recoveryBatch    = 20
	alarmGap         = 200 * time.Millisecond
	alarmToneFreq    = 800.0
	alarmToneLen     = time.Second
	chimeFreq        = 880.0
	chimeLen         = 400 * time.Millisecond
)

// StatusChange is the bus payload for scheduler lifecycle broadcasts.
type StatusChange struct {
	EventID int64  `json:"event_id"`
	UserID  int64  `json:"user_id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Name    string `json:"name"`
	Text    string `json:"text,omitempty"`
}

// Engine is the scheduler. One per daemon.
type Engine struct {
	store    *storage.Store
	registry *tools.Registry
	notifier *notify.Service
	audio    *audio.Engine
	log      logx.Logger

	cfgMu    sync.RWMutex
	settings config.SchedulerSettings
	loc      *time.Location

	// notifyCh carries "re-evaluate next wake time" pokes from inserts and
	// snoozes. Buffered so Notify never blocks; one pending poke is enough.
	notifyCh chan struct{}

	// ringMu guards the single ringing marker. Distinct from the store's
	// serialization: dismiss/snooze must clear this and stop audio
	// atomically with respect to the firing path.
	ringMu  sync.Mutex
	ringing *storage.ScheduledEvent

	// audio worker; at most one at a time
	soundMu     sync.Mutex
	soundCancel context.CancelFunc
	soundDone   chan struct{}
}

func New(store *storage.Store, registry *tools.Registry, notifier *notify.Service, audioEng *audio.Engine, settings config.SchedulerSettings, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		store:    store,
		registry: registry,
		notifier: notifier,
		audio:    audioEng,
		log:      log,
		notifyCh: make(chan struct{}, 1),
	}
	e.applyLocked(settings)
	return e
}

// Apply installs new settings at runtime (config hot reload).
func (e *Engine) Apply(settings config.SchedulerSettings) {
	e.cfgMu.Lock()
	e.applyLocked(settings)
	e.cfgMu.Unlock()
	e.Notify()
}

func (e *Engine) applyLocked(settings config.SchedulerSettings) {
	e.settings = settings
	loc := time.Local
	if settings.Timezone != "" {
		if l, err := time.LoadLocation(settings.Timezone); err == nil {
			loc = l
		} else {
			e.log.Warn("bad timezone; using system local", logx.String("tz", settings.Timezone), logx.Err(err))
		}
	}
	e.loc = loc
}

func (e *Engine) snapshot() (config.SchedulerSettings, *time.Location) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.settings, e.loc
}

// Notify wakes the run loop so it recomputes the next fire time. Called on
// every insert and snooze; without it the loop would sleep out a stale
// timeout while an earlier event waits.
func (e *Engine) Notify() {
	select {
	case e.notifyCh <- struct{}{}:
	default:
	}
}

// Run is the wake loop. Blocks until ctx is cancelled.
//
// The loop alternates between two waits: indefinite when the store has no
// pending/snoozed events, and timed until the earliest fire_at otherwise.
// time.Timer counts monotonic time, so a system clock step cannot fire
// events early; a step forward past a fire time is caught on the next poke
// or wake because due-ness is always re-checked against the wall clock.
func (e *Engine) Run(ctx context.Context) error {
	settings, _ := e.snapshot()

	e.log.Info("scheduler started", logx.Duration("grace_period", settings.GracePeriod))

	// Grace sleep: let TTS/audio/session subsystems come up before events
	// start firing (and before missed recovery talks to them).
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(settings.GracePeriod):
	}

	if deleted, err := e.store.CleanupOldEvents(ctx, settings.RetentionDays); err != nil {
		e.log.Warn("startup retention cleanup failed", logx.Err(err))
	} else if deleted > 0 {
		e.log.Info("cleaned up old events", logx.Int64("deleted", deleted))
	}

	if settings.MissedEventRecovery {
		e.recoverMissed(ctx)
	}

	for {
		next, ok, err := e.store.NextFireTime(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.log.Error("next fire time query failed", logx.Err(err))
			ok = false
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if ok {
			d := time.Until(next)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			e.stopSound()
			e.log.Info("scheduler stopped")
			return nil
		case <-e.notifyCh:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
		}

		e.fireDue(ctx)
	}
}

func (e *Engine) fireDue(ctx context.Context) {
	due, err := e.store.DueEvents(ctx, time.Now(), fireBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Error("due events query failed", logx.Err(err))
		}
		return
	}
	for i := range due {
		e.fireEvent(ctx, due[i])
	}
}

// fireEvent drives one due event through its firing path. The conditional
// ringing transition loses to a concurrent cancel, in which case the event
// is simply skipped.
func (e *Engine) fireEvent(ctx context.Context, ev storage.ScheduledEvent) {
	now := time.Now()
	_, loc := e.snapshot()

	if err := e.store.MarkRinging(ctx, ev.ID, now); err != nil {
		if errors.Is(err, storage.ErrRejected) {
			e.log.Debug("event changed before firing; skipping", logx.Int64("id", ev.ID))
		} else {
			e.log.Error("marking event ringing failed", logx.Int64("id", ev.ID), logx.Err(err))
		}
		return
	}
	ev.Status = storage.StatusRinging
	ev.FiredAt = now

	// Tasks execute synchronously and never stay ringing for interaction.
	if ev.Type == storage.TypeTask {
		final := storage.StatusFired
		if err := e.executeTask(ctx, ev); err != nil {
			e.log.Warn("scheduled task failed", logx.Int64("id", ev.ID),
				logx.String("tool", ev.ToolName), logx.Err(err))
			final = storage.StatusMissed
		}
		if err := e.store.UpdateStatus(ctx, ev.ID, final); err != nil {
			e.log.Error("task status update failed", logx.Int64("id", ev.ID), logx.Err(err))
		}
		ev.Status = final

		e.announce(ctx, ev, loc)
		e.publish(busTypeForStatus(final), ev, "")
		e.scheduleNextOccurrence(ctx, ev)
		return
	}

	e.setRinging(ev)
	e.announce(ctx, ev, loc)
	e.publish(eventbus.TypeEventFired, ev, "")
	e.startSound(ev)
}

func (e *Engine) announce(ctx context.Context, ev storage.ScheduledEvent, loc *time.Location) {
	text := announcementText(ev, loc)
	e.log.Info("announcing event",
		logx.Int64("id", ev.ID), logx.String("type", string(ev.Type)), logx.String("text", text))
	if e.notifier != nil {
		e.notifier.Announce(ctx, notify.Announcement{
			Text:        text,
			SourceUUID:  ev.SourceUUID,
			AnnounceAll: ev.AnnounceAll,
		})
	}
}

func (e *Engine) publish(busType string, ev storage.ScheduledEvent, text string) {
	if e.notifier == nil {
		return
	}
	e.notifier.PublishStatus(busType, StatusChange{
		EventID: ev.ID,
		UserID:  ev.UserID,
		Type:    string(ev.Type),
		Status:  string(ev.Status),
		Name:    ev.Name,
		Text:    text,
	})
}

func busTypeForStatus(st storage.Status) string {
	switch st {
	case storage.StatusFired:
		return eventbus.TypeEventFired
	case storage.StatusDismissed:
		return eventbus.TypeEventDismissed
	case storage.StatusSnoozed:
		return eventbus.TypeEventSnoozed
	case storage.StatusCancelled:
		return eventbus.TypeEventCancelled
	case storage.StatusMissed:
		return eventbus.TypeEventMissed
	case storage.StatusTimedOut:
		return eventbus.TypeEventTimedOut
	default:
		return eventbus.TypeEventCreated
	}
}

// scheduleNextOccurrence inserts the successor of a recurring event that
// just reached a terminal state. The original keeps its terminal status.
// Successors bypass the caps on purpose: a full store must not silently
// kill a recurring alarm series.
func (e *Engine) scheduleNextOccurrence(ctx context.Context, ev storage.ScheduledEvent) {
	if ev.Recurrence == storage.RecurOnce || ev.Recurrence == "" {
		return
	}
	_, loc := e.snapshot()

	nextFire, ok := NextOccurrence(ev, time.Now(), loc)
	if !ok {
		e.log.Warn("no next occurrence found", logx.Int64("id", ev.ID),
			logx.String("recurrence", string(ev.Recurrence)))
		return
	}

	next := ev
	next.ID = 0
	next.Status = storage.StatusPending
	next.FireAt = nextFire
	next.FiredAt = time.Time{}
	next.SnoozedUntil = time.Time{}
	next.SnoozeCount = 0

	if err := e.store.Insert(ctx, &next); err != nil {
		e.log.Error("inserting next recurrence failed", logx.String("name", ev.Name), logx.Err(err))
		return
	}
	e.log.Info("scheduled next recurrence",
		logx.String("name", next.Name), logx.Time("fire_at", nextFire), logx.Int64("id", next.ID))
	e.publish(eventbus.TypeEventCreated, next, "")
	e.Notify()
}
