// Package scheduler fires timers, alarms, reminders and scheduled tasks.
//
// The engine owns one wake goroutine that sleeps until the store's earliest
// fire time, a ringing marker serializing dismiss/snooze against the firing
// path, and at most one audio worker. The event table is the source of truth
// for all state; the in-memory ringing marker exists only to make
// dismiss/snooze race-free against the firing path and is always reconciled
// against the store's conditional updates.
package scheduler
