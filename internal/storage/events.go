package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/domain"
)

const eventColumns = `id, user_id, title, description, event_date, repeat_interval, timezone,
	next_occurrence, caldav_uid, created_at, updated_at`

func (s *Storage) CreateEvent(e *domain.Event) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	result, err := s.db.Exec(`
		INSERT INTO events (user_id, title, description, event_date, repeat_interval, timezone,
			next_occurrence, caldav_uid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Title, e.Description, formatTime(e.EventDate), string(e.Repeat), e.Timezone,
		formatTimePtr(e.NextOccurrence), e.CalDAVUID, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id
	return nil
}

func (s *Storage) GetEvent(id int64) (*domain.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListEventsByUser returns a user's events, optionally filtered by a case-insensitive
// title substring, ordered by stored date.
func (s *Storage) ListEventsByUser(userID int64, query string) ([]*domain.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE user_id = ?`
	args := []interface{}{userID}

	if query = strings.TrimSpace(query); query != "" {
		q += ` AND title LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(query)+"%")
	}
	q += ` ORDER BY event_date ASC, id ASC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecurringEvents returns every event with a repeat rule, across users.
func (s *Storage) ListRecurringEvents() ([]*domain.Event, error) {
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events WHERE repeat_interval != ? ORDER BY id`,
		string(countdown.RuleNone))
	if err != nil {
		return nil, fmt.Errorf("list recurring events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListEventsDueBefore returns one-off events whose date is before t and recurring
// events whose cached occurrence is before t or missing.
func (s *Storage) ListEventsDueBefore(t time.Time) ([]*domain.Event, error) {
	ts := formatTime(t)
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events
		WHERE (repeat_interval = ? AND event_date < ?)
		   OR (repeat_interval != ? AND (next_occurrence IS NULL OR next_occurrence < ?))
		ORDER BY id`,
		string(countdown.RuleNone), ts, string(countdown.RuleNone), ts)
	if err != nil {
		return nil, fmt.Errorf("list events due: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// UpdateEvent replaces the editable fields and the cached occurrence. Used when
// the anchor or rule changed, so the cache may move backwards here.
func (s *Storage) UpdateEvent(e *domain.Event) error {
	e.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE events SET title = ?, description = ?, event_date = ?, repeat_interval = ?,
			timezone = ?, next_occurrence = ?, updated_at = ?
		WHERE id = ?`,
		e.Title, e.Description, formatTime(e.EventDate), string(e.Repeat), e.Timezone,
		formatTimePtr(e.NextOccurrence), formatTime(e.UpdatedAt), e.ID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// UpdateEventDetails writes the fields that do not affect the schedule. The
// occurrence cache is left to AdvanceNextOccurrence.
func (s *Storage) UpdateEventDetails(e *domain.Event) error {
	e.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE events SET title = ?, description = ?, timezone = ?, updated_at = ?
		WHERE id = ?`,
		e.Title, e.Description, e.Timezone, formatTime(e.UpdatedAt), e.ID)
	if err != nil {
		return fmt.Errorf("update event details: %w", err)
	}
	return nil
}

// AdvanceNextOccurrence stores next only if it does not move the cached value
// backwards. Concurrent refreshes may race; whichever lands, the cache only grows.
// Reports whether the row changed.
func (s *Storage) AdvanceNextOccurrence(id int64, next time.Time) (bool, error) {
	ts := formatTime(next)
	result, err := s.db.Exec(`
		UPDATE events SET next_occurrence = ?
		WHERE id = ? AND (next_occurrence IS NULL OR next_occurrence < ?)`,
		ts, id, ts)
	if err != nil {
		return false, fmt.Errorf("advance next occurrence: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Storage) UpdateEventCalDAVUID(id int64, uid string) error {
	_, err := s.db.Exec(`UPDATE events SET caldav_uid = ? WHERE id = ?`, uid, id)
	if err != nil {
		return fmt.Errorf("update caldav uid: %w", err)
	}
	return nil
}

func (s *Storage) DeleteEvent(id int64) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// RecordAlert marks an occurrence of an event as announced. It reports false if
// the occurrence was already recorded.
func (s *Storage) RecordAlert(eventID int64, occurrence time.Time) (bool, error) {
	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO event_alerts (event_id, occurrence, sent_at) VALUES (?, ?, ?)`,
		eventID, formatTime(occurrence), formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("record alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ForgetAlert removes an alert record so a failed delivery can be retried.
func (s *Storage) ForgetAlert(eventID int64, occurrence time.Time) error {
	_, err := s.db.Exec(`DELETE FROM event_alerts WHERE event_id = ? AND occurrence = ?`,
		eventID, formatTime(occurrence))
	if err != nil {
		return fmt.Errorf("forget alert: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]*domain.Event, error) {
	var events []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var e domain.Event
	var eventDate, repeat, createdAt, updatedAt string
	var next sql.NullString

	err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Description, &eventDate, &repeat, &e.Timezone,
		&next, &e.CalDAVUID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}

	rule, err := countdown.ParseRule(repeat)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", e.ID, err)
	}
	e.Repeat = rule

	if e.EventDate, err = parseTime(eventDate); err != nil {
		return nil, err
	}
	if e.NextOccurrence, err = parseNullTime(next); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
