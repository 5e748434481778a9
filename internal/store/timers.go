// ABOUTME: Timer persistence for SQLiteStore
// ABOUTME: Timers are stored with their end time so active ones can be listed cheaply

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateTimer stores a new timer. ID and StartedAt are filled in when zero.
func (s *SQLiteStore) CreateTimer(ctx context.Context, timer *Timer) error {
	if timer.ID == "" {
		timer.ID = uuid.New().String()
	}
	if timer.StartedAt.IsZero() {
		timer.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO timers (id, label, duration_seconds, started_at, ends_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		timer.ID,
		timer.Label,
		timer.DurationSeconds,
		formatTime(timer.StartedAt),
		formatTime(timer.EndsAt()),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("timer %s: %w", timer.ID, ErrDuplicate)
		}
		return fmt.Errorf("inserting timer: %w", err)
	}

	s.logger.Debug("created timer", "id", timer.ID, "seconds", timer.DurationSeconds)
	return nil
}

// ListActiveTimers returns timers that have not ended at now, soonest first.
func (s *SQLiteStore) ListActiveTimers(ctx context.Context, now time.Time) ([]*Timer, error) {
	query := `
		SELECT id, label, duration_seconds, started_at
		FROM timers
		WHERE ends_at > ?
		ORDER BY ends_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("querying timers: %w", err)
	}
	defer rows.Close()

	var timers []*Timer
	for rows.Next() {
		var t Timer
		var startedAt string
		if err := rows.Scan(&t.ID, &t.Label, &t.DurationSeconds, &startedAt); err != nil {
			return nil, fmt.Errorf("scanning timer: %w", err)
		}
		if t.StartedAt, err = parseTime("started_at", startedAt); err != nil {
			return nil, err
		}
		timers = append(timers, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timers: %w", err)
	}
	return timers, nil
}

// DeleteTimer removes a timer. Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) DeleteTimer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM timers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting timer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
