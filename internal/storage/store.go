package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const selectCols = `id, user_id, event_type, status, name, message, fire_at, created_at,
 duration_sec, snoozed_until, recurrence, recurrence_days, original_time,
 source_uuid, source_location, announce_all, tool_name, tool_action,
 tool_value, fired_at, snooze_count`

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open creates or opens the event database and applies migrations.
// Use ":memory:" for tests.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite wants a single writer. One connection doubles as the coarse
	// lock that keeps count-then-insert atomic in InsertChecked.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert adds an event without cap checks (used for recurrence successors,
// which must never be rejected by user limits). Sets CreatedAt and ID.
func (s *Store) Insert(ctx context.Context, ev *ScheduledEvent) error {
	ev.CreatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `INSERT INTO scheduled_events
 (user_id, event_type, status, name, message, fire_at, created_at,
  duration_sec, snoozed_until, recurrence, recurrence_days, original_time,
  source_uuid, source_location, announce_all, tool_name, tool_action,
  tool_value, fired_at, snooze_count)
 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		insertArgs(ev)...)
	if err != nil {
		return err
	}
	ev.ID, err = res.LastInsertId()
	return err
}

// InsertChecked enforces the per-user and global active-event caps atomically
// with the insert. The pool is capped at one connection, so the transaction
// holds the only handle from count through insert and the counts cannot go
// stale in between.
func (s *Store) InsertChecked(ctx context.Context, ev *ScheduledEvent, maxPerUser, maxTotal int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var userCount int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled_events
 WHERE user_id = ? AND status IN ('pending','snoozed','ringing')`, ev.UserID).Scan(&userCount)
	if err != nil {
		return err
	}
	if userCount >= maxPerUser {
		return ErrUserLimit
	}

	var total int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled_events
 WHERE status IN ('pending','snoozed','ringing')`).Scan(&total)
	if err != nil {
		return err
	}
	if total >= maxTotal {
		return ErrGlobalLimit
	}

	ev.CreatedAt = time.Now()
	res, err := tx.ExecContext(ctx, `INSERT INTO scheduled_events
 (user_id, event_type, status, name, message, fire_at, created_at,
  duration_sec, snoozed_until, recurrence, recurrence_days, original_time,
  source_uuid, source_location, announce_all, tool_name, tool_action,
  tool_value, fired_at, snooze_count)
 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		insertArgs(ev)...)
	if err != nil {
		return err
	}
	if ev.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Get(ctx context.Context, id int64) (ScheduledEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectCols+` FROM scheduled_events WHERE id = ?`, id)
	return scanEvent(row)
}

// UpdateStatus overwrites status unconditionally. Prefer the conditional
// mutations below anywhere two actors can race.
func (s *Store) UpdateStatus(ctx context.Context, id int64, st Status) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_events SET status = ? WHERE id = ?`, string(st), id)
	return err
}

func (s *Store) UpdateStatusFired(ctx context.Context, id int64, st Status, firedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_events SET status = ?, fired_at = ? WHERE id = ?`,
		string(st), unix(firedAt), id)
	return err
}

// MarkRinging transitions pending/snoozed -> ringing and records the fire
// instant. The status predicate makes the firing path safe against a
// concurrent cancel.
func (s *Store) MarkRinging(ctx context.Context, id int64, firedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_events SET status = 'ringing', fired_at = ?
 WHERE id = ? AND status IN ('pending','snoozed')`, unix(firedAt), id)
	return rejectedOnZero(res, err)
}

func (s *Store) Snooze(ctx context.Context, id int64, newFireAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_events SET status = 'snoozed',
 fire_at = ?, snoozed_until = ?, snooze_count = snooze_count + 1
 WHERE id = ? AND status IN ('ringing','pending','snoozed')`,
		unix(newFireAt), unix(newFireAt), id)
	return rejectedOnZero(res, err)
}

func (s *Store) Cancel(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_events SET status = 'cancelled'
 WHERE id = ? AND status IN ('pending','snoozed')`, id)
	return rejectedOnZero(res, err)
}

func (s *Store) Dismiss(ctx context.Context, id int64, firedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_events SET status = 'dismissed',
 fired_at = ? WHERE id = ? AND status = 'ringing'`, unix(firedAt), id)
	return rejectedOnZero(res, err)
}

// NextFireTime returns the minimum fire_at among pending/snoozed events.
// ok=false means the store has nothing scheduled.
func (s *Store) NextFireTime(ctx context.Context) (time.Time, bool, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MIN(fire_at) FROM scheduled_events
 WHERE status IN ('pending','snoozed')`).Scan(&v)
	if err != nil {
		return time.Time{}, false, err
	}
	if !v.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(v.Int64, 0), true, nil
}

// DueEvents returns pending/snoozed events with fire_at <= now, earliest first.
func (s *Store) DueEvents(ctx context.Context, now time.Time, limit int) ([]ScheduledEvent, error) {
	return s.queryEvents(ctx, `SELECT `+selectCols+` FROM scheduled_events
 WHERE fire_at <= ? AND status IN ('pending','snoozed')
 ORDER BY fire_at ASC LIMIT ?`, now.Unix(), limit)
}

// ListUserEvents lists a user's active events, optionally filtered by type
// (empty means all types).
func (s *Store) ListUserEvents(ctx context.Context, userID int64, typ EventType, limit int) ([]ScheduledEvent, error) {
	if typ == "" {
		return s.queryEvents(ctx, `SELECT `+selectCols+` FROM scheduled_events
 WHERE user_id = ? AND status IN ('pending','snoozed','ringing')
 ORDER BY fire_at ASC LIMIT ?`, userID, limit)
	}
	return s.queryEvents(ctx, `SELECT `+selectCols+` FROM scheduled_events
 WHERE user_id = ? AND status IN ('pending','snoozed','ringing')
 AND event_type = ? ORDER BY fire_at ASC LIMIT ?`, userID, string(typ), limit)
}

// FindByName returns the user's most recently created active event with the
// given name (case-insensitive). ErrNotFound when nothing matches.
func (s *Store) FindByName(ctx context.Context, userID int64, name string) (ScheduledEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM scheduled_events
 WHERE user_id = ? AND name = ? COLLATE NOCASE
 AND status IN ('pending','snoozed','ringing')
 ORDER BY created_at DESC LIMIT 1`, userID, name)
	return scanEvent(row)
}

func (s *Store) CountUserEvents(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled_events
 WHERE user_id = ? AND status IN ('pending','snoozed','ringing')`, userID).Scan(&n)
	return n, err
}

func (s *Store) CountTotalEvents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled_events
 WHERE status IN ('pending','snoozed','ringing')`).Scan(&n)
	return n, err
}

// Ringing returns currently-ringing events, oldest fired first.
func (s *Store) Ringing(ctx context.Context, limit int) ([]ScheduledEvent, error) {
	return s.queryEvents(ctx, `SELECT `+selectCols+` FROM scheduled_events
 WHERE status = 'ringing' ORDER BY fired_at ASC LIMIT ?`, limit)
}

// ActiveTimersByUUID returns pending/snoozed timers created by one satellite.
// Timers only; alarms and reminders are not scoped to their source device.
func (s *Store) ActiveTimersByUUID(ctx context.Context, uuid string, limit int) ([]ScheduledEvent, error) {
	return s.queryEvents(ctx, `SELECT `+selectCols+` FROM scheduled_events
 WHERE source_uuid = ? AND status IN ('pending','snoozed')
 AND event_type = 'timer' ORDER BY fire_at ASC LIMIT ?`, uuid, limit)
}

// CleanupOldEvents deletes terminal rows older than the retention horizon.
// The cutoff compares fired_at when the event actually fired, otherwise
// created_at (cancelled rows never fire).
func (s *Store) CleanupOldEvents(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_events
 WHERE status IN ('fired','cancelled','missed','dismissed','timed_out')
 AND ((fired_at > 0 AND fired_at < ?) OR (fired_at = 0 AND created_at < ?))`,
		cutoff, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MissedEvents returns pending/snoozed events whose fire time already passed,
// for the startup recovery pass.
func (s *Store) MissedEvents(ctx context.Context, now time.Time, limit int) ([]ScheduledEvent, error) {
	return s.queryEvents(ctx, `SELECT `+selectCols+` FROM scheduled_events
 WHERE fire_at < ? AND status IN ('pending','snoozed')
 ORDER BY fire_at ASC LIMIT ?`, now.Unix(), limit)
}

// ---- helpers ----

func (s *Store) queryEvents(ctx context.Context, q string, args ...any) ([]ScheduledEvent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func insertArgs(ev *ScheduledEvent) []any {
	return []any{
		ev.UserID, string(ev.Type), string(ev.Status), ev.Name, ev.Message,
		unix(ev.FireAt), unix(ev.CreatedAt), ev.DurationSec, unix(ev.SnoozedUntil),
		string(ev.Recurrence), ev.RecurrenceDays, ev.OriginalTime,
		nullStr(ev.SourceUUID), nullStr(ev.SourceLocation), boolInt(ev.AnnounceAll),
		nullStr(ev.ToolName), nullStr(ev.ToolAction), nullStr(ev.ToolValue),
		unix(ev.FiredAt), ev.SnoozeCount,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (ScheduledEvent, error) {
	var (
		ev                               ScheduledEvent
		typ, status, recur               string
		msg, days, orig, uuid, loc       sql.NullString
		toolName, toolAction, toolValue  sql.NullString
		fireAt, createdAt, snoozed, fird int64
		announce                         int
	)
	err := row.Scan(
		&ev.ID, &ev.UserID, &typ, &status, &ev.Name, &msg, &fireAt, &createdAt,
		&ev.DurationSec, &snoozed, &recur, &days, &orig,
		&uuid, &loc, &announce, &toolName, &toolAction,
		&toolValue, &fird, &ev.SnoozeCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ev, ErrNotFound
	}
	if err != nil {
		return ev, err
	}
	ev.Type = EventType(typ)
	ev.Status = Status(status)
	ev.Recurrence = Recurrence(recur)
	ev.Message = msg.String
	ev.RecurrenceDays = days.String
	ev.OriginalTime = orig.String
	ev.SourceUUID = uuid.String
	ev.SourceLocation = loc.String
	ev.AnnounceAll = announce != 0
	ev.ToolName = toolName.String
	ev.ToolAction = toolAction.String
	ev.ToolValue = toolValue.String
	ev.FireAt = fromUnix(fireAt)
	ev.CreatedAt = fromUnix(createdAt)
	ev.SnoozedUntil = fromUnix(snoozed)
	ev.FiredAt = fromUnix(fird)
	return ev, nil
}

func rejectedOnZero(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRejected
	}
	return nil
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
