// Package storage persists scheduled events in SQLite.
//
// The event table is the single source of truth for event state. Every
// conditional mutation (snooze, cancel, dismiss) encodes its status
// precondition inside the UPDATE statement itself, so concurrent callers
// race on rows-affected instead of on read-then-write. A zero-row update
// surfaces as ErrRejected and means someone else won the race.
package storage
