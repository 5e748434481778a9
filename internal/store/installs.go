// ABOUTME: Install audit log persistence for SQLiteStore
// ABOUTME: One row per installation attempt, newest first on listing

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordInstall appends an installation attempt to the audit log.
// ID and CreatedAt are filled in when zero.
func (s *SQLiteStore) RecordInstall(ctx context.Context, event *InstallEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO install_events (id, kind, source, plugin_id, state, error, digest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Kind,
		event.Source,
		nullString(event.PluginID),
		event.State,
		nullString(event.Error),
		nullString(event.Digest),
		formatTime(event.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("install event %s: %w", event.ID, ErrDuplicate)
		}
		return fmt.Errorf("inserting install event: %w", err)
	}

	s.logger.Debug("recorded install event", "id", event.ID, "state", event.State)
	return nil
}

// ListInstallEvents returns up to limit events, newest first.
// A limit of zero or less returns every event.
func (s *SQLiteStore) ListInstallEvents(ctx context.Context, limit int) ([]*InstallEvent, error) {
	query := `
		SELECT id, kind, source, plugin_id, state, error, digest, created_at
		FROM install_events
		ORDER BY created_at DESC, id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying install events: %w", err)
	}
	defer rows.Close()

	var events []*InstallEvent
	for rows.Next() {
		var e InstallEvent
		var pluginID, errText, digest sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Source, &pluginID, &e.State, &errText, &digest, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning install event: %w", err)
		}
		e.PluginID = pluginID.String
		e.Error = errText.String
		e.Digest = digest.String
		if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating install events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
