package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mkEvent(typ EventType, fireAt time.Time) *ScheduledEvent {
	return &ScheduledEvent{
		UserID:     1,
		Type:       typ,
		Status:     StatusPending,
		Name:       "test " + string(typ),
		Message:    "hello",
		FireAt:     fireAt,
		Recurrence: RecurOnce,
	}
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	fireAt := time.Now().Add(time.Hour).Truncate(time.Second)
	ev := mkEvent(TypeAlarm, fireAt)
	ev.OriginalTime = "07:30"
	ev.SourceUUID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	ev.AnnounceAll = true

	if err := s.Insert(ctx, ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ev.ID == 0 {
		t.Fatalf("Insert did not set ID")
	}

	got, err := s.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.FireAt.Equal(fireAt) {
		t.Errorf("FireAt = %v, want %v", got.FireAt, fireAt)
	}
	if got.Type != TypeAlarm || got.Status != StatusPending {
		t.Errorf("Type/Status = %v/%v", got.Type, got.Status)
	}
	if got.OriginalTime != "07:30" || !got.AnnounceAll || got.SourceUUID != ev.SourceUUID {
		t.Errorf("metadata did not round-trip: %+v", got)
	}
	if !got.SnoozedUntil.IsZero() || !got.FiredAt.IsZero() {
		t.Errorf("zero times did not round-trip as zero: %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if _, err := s.Get(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestInsertCheckedLimits(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	fireAt := time.Now().Add(time.Hour)

	// user 1 fills their cap of 2
	for i := 0; i < 2; i++ {
		if err := s.InsertChecked(ctx, mkEvent(TypeTimer, fireAt), 2, 3); err != nil {
			t.Fatalf("InsertChecked %d: %v", i, err)
		}
	}
	if err := s.InsertChecked(ctx, mkEvent(TypeTimer, fireAt), 2, 3); !errors.Is(err, ErrUserLimit) {
		t.Fatalf("over user cap = %v, want ErrUserLimit", err)
	}

	// a different user still fits until the global cap
	other := mkEvent(TypeTimer, fireAt)
	other.UserID = 2
	if err := s.InsertChecked(ctx, other, 2, 3); err != nil {
		t.Fatalf("InsertChecked other user: %v", err)
	}
	third := mkEvent(TypeTimer, fireAt)
	third.UserID = 3
	if err := s.InsertChecked(ctx, third, 2, 3); !errors.Is(err, ErrGlobalLimit) {
		t.Fatalf("over global cap = %v, want ErrGlobalLimit", err)
	}

	// terminal events free up capacity
	if err := s.UpdateStatus(ctx, other.ID, StatusCancelled); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := s.InsertChecked(ctx, third, 2, 3); err != nil {
		t.Fatalf("InsertChecked after cancel: %v", err)
	}
}

func TestConditionalMutations(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	fireAt := time.Now().Add(time.Hour)

	t.Run("dismiss requires ringing", func(t *testing.T) {
		ev := mkEvent(TypeAlarm, fireAt)
		if err := s.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := s.Dismiss(ctx, ev.ID, time.Now()); !errors.Is(err, ErrRejected) {
			t.Fatalf("Dismiss(pending) = %v, want ErrRejected", err)
		}
		if err := s.MarkRinging(ctx, ev.ID, time.Now()); err != nil {
			t.Fatalf("MarkRinging: %v", err)
		}
		if err := s.Dismiss(ctx, ev.ID, time.Now()); err != nil {
			t.Fatalf("Dismiss(ringing): %v", err)
		}
		got, _ := s.Get(ctx, ev.ID)
		if got.Status != StatusDismissed || got.FiredAt.IsZero() {
			t.Fatalf("after dismiss: status=%v firedAt=%v", got.Status, got.FiredAt)
		}
		// second dismiss is a lost race
		if err := s.Dismiss(ctx, ev.ID, time.Now()); !errors.Is(err, ErrRejected) {
			t.Fatalf("double Dismiss = %v, want ErrRejected", err)
		}
	})

	t.Run("cancel only from pending or snoozed", func(t *testing.T) {
		ev := mkEvent(TypeTimer, fireAt)
		if err := s.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := s.Cancel(ctx, ev.ID); err != nil {
			t.Fatalf("Cancel(pending): %v", err)
		}
		if err := s.Cancel(ctx, ev.ID); !errors.Is(err, ErrRejected) {
			t.Fatalf("Cancel(cancelled) = %v, want ErrRejected", err)
		}
	})

	t.Run("snooze updates fire time and count", func(t *testing.T) {
		ev := mkEvent(TypeAlarm, fireAt)
		if err := s.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		until := time.Now().Add(9 * time.Minute).Truncate(time.Second)
		if err := s.Snooze(ctx, ev.ID, until); err != nil {
			t.Fatalf("Snooze: %v", err)
		}
		got, _ := s.Get(ctx, ev.ID)
		if got.Status != StatusSnoozed || got.SnoozeCount != 1 {
			t.Fatalf("after snooze: status=%v count=%d", got.Status, got.SnoozeCount)
		}
		if !got.FireAt.Equal(until) || !got.SnoozedUntil.Equal(until) {
			t.Fatalf("snooze times: fireAt=%v snoozedUntil=%v want %v", got.FireAt, got.SnoozedUntil, until)
		}
		// snoozing a snoozed event is allowed and increments again
		if err := s.Snooze(ctx, ev.ID, until.Add(time.Minute)); err != nil {
			t.Fatalf("Snooze again: %v", err)
		}
		got, _ = s.Get(ctx, ev.ID)
		if got.SnoozeCount != 2 {
			t.Fatalf("SnoozeCount = %d, want 2", got.SnoozeCount)
		}
		// but not a dismissed one
		if err := s.UpdateStatus(ctx, ev.ID, StatusDismissed); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		if err := s.Snooze(ctx, ev.ID, until); !errors.Is(err, ErrRejected) {
			t.Fatalf("Snooze(dismissed) = %v, want ErrRejected", err)
		}
	})
}

func TestNextFireTimeAndDueEvents(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	if _, ok, err := s.NextFireTime(ctx); err != nil || ok {
		t.Fatalf("NextFireTime(empty) = ok=%v err=%v, want none", ok, err)
	}

	early := mkEvent(TypeTimer, now.Add(-2*time.Minute))
	late := mkEvent(TypeReminder, now.Add(-1*time.Minute))
	future := mkEvent(TypeAlarm, now.Add(time.Hour))
	for _, ev := range []*ScheduledEvent{late, early, future} {
		if err := s.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	next, ok, err := s.NextFireTime(ctx)
	if err != nil || !ok {
		t.Fatalf("NextFireTime: ok=%v err=%v", ok, err)
	}
	if !next.Equal(early.FireAt.Truncate(time.Second)) {
		t.Fatalf("NextFireTime = %v, want %v", next, early.FireAt)
	}

	due, err := s.DueEvents(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueEvents: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("len(due) = %d, want 2", len(due))
	}
	if due[0].ID != early.ID || due[1].ID != late.ID {
		t.Fatalf("due order = [%d %d], want [%d %d]", due[0].ID, due[1].ID, early.ID, late.ID)
	}
}

func TestFindByNameCaseInsensitive(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	ev := mkEvent(TypeTimer, time.Now().Add(time.Minute))
	ev.Name = "Pasta Timer"
	if err := s.Insert(ctx, ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.FindByName(ctx, 1, "pasta timer")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if got.ID != ev.ID {
		t.Fatalf("FindByName ID = %d, want %d", got.ID, ev.ID)
	}

	if _, err := s.FindByName(ctx, 2, "pasta timer"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByName(other user) = %v, want ErrNotFound", err)
	}
}

func TestCleanupOldEvents(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	old := mkEvent(TypeTimer, time.Now().Add(-48*time.Hour))
	if err := s.Insert(ctx, old); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// fired long before the 1-day horizon
	if err := s.UpdateStatusFired(ctx, old.ID, StatusFired, time.Now().Add(-40*time.Hour)); err != nil {
		t.Fatalf("UpdateStatusFired: %v", err)
	}

	recent := mkEvent(TypeTimer, time.Now().Add(-time.Hour))
	if err := s.Insert(ctx, recent); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.UpdateStatusFired(ctx, recent.ID, StatusFired, time.Now()); err != nil {
		t.Fatalf("UpdateStatusFired: %v", err)
	}

	active := mkEvent(TypeAlarm, time.Now().Add(time.Hour))
	if err := s.Insert(ctx, active); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	deleted, err := s.CleanupOldEvents(ctx, 1)
	if err != nil {
		t.Fatalf("CleanupOldEvents: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if _, err := s.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old event survived cleanup: %v", err)
	}
	if _, err := s.Get(ctx, recent.ID); err != nil {
		t.Fatalf("recent terminal event deleted: %v", err)
	}
	if _, err := s.Get(ctx, active.ID); err != nil {
		t.Fatalf("active event deleted: %v", err)
	}
}

func TestMissedEvents(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	past := mkEvent(TypeReminder, now.Add(-time.Hour))
	future := mkEvent(TypeReminder, now.Add(time.Hour))
	for _, ev := range []*ScheduledEvent{past, future} {
		if err := s.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	missed, err := s.MissedEvents(ctx, now, 20)
	if err != nil {
		t.Fatalf("MissedEvents: %v", err)
	}
	if len(missed) != 1 || missed[0].ID != past.ID {
		t.Fatalf("missed = %+v, want only the past event", missed)
	}
}

func TestActiveTimersByUUID(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	fireAt := time.Now().Add(time.Hour)

	timer := mkEvent(TypeTimer, fireAt)
	timer.SourceUUID = "aaaa"
	alarm := mkEvent(TypeAlarm, fireAt)
	alarm.SourceUUID = "aaaa"
	otherTimer := mkEvent(TypeTimer, fireAt)
	otherTimer.SourceUUID = "bbbb"
	for _, ev := range []*ScheduledEvent{timer, alarm, otherTimer} {
		if err := s.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.ActiveTimersByUUID(ctx, "aaaa", 10)
	if err != nil {
		t.Fatalf("ActiveTimersByUUID: %v", err)
	}
	if len(got) != 1 || got[0].ID != timer.ID {
		t.Fatalf("got %+v, want only the timer from aaaa", got)
	}
}

func TestListUserEventsTypeFilter(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	fireAt := time.Now().Add(time.Hour)

	timer := mkEvent(TypeTimer, fireAt)
	alarm := mkEvent(TypeAlarm, fireAt.Add(time.Minute))
	for _, ev := range []*ScheduledEvent{timer, alarm} {
		if err := s.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	all, err := s.ListUserEvents(ctx, 1, "", 10)
	if err != nil {
		t.Fatalf("ListUserEvents: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	alarms, err := s.ListUserEvents(ctx, 1, TypeAlarm, 10)
	if err != nil {
		t.Fatalf("ListUserEvents(alarm): %v", err)
	}
	if len(alarms) != 1 || alarms[0].ID != alarm.ID {
		t.Fatalf("alarms = %+v, want only the alarm", alarms)
	}
}
