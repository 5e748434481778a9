// ABOUTME: Plugin preference persistence for SQLiteStore
// ABOUTME: Stores the per-plugin enabled flag; a missing row means the default applies

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PluginEnabled returns the stored enabled flag for pluginID.
// found is false when no preference has been saved.
func (s *SQLiteStore) PluginEnabled(ctx context.Context, pluginID string) (bool, bool, error) {
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM plugin_preferences WHERE plugin_id = ?`, pluginID,
	).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("querying plugin preference: %w", err)
	}
	return enabled != 0, true, nil
}

// SetPluginEnabled upserts the enabled flag for pluginID.
func (s *SQLiteStore) SetPluginEnabled(ctx context.Context, pluginID string, enabled bool) error {
	query := `
		INSERT INTO plugin_preferences (plugin_id, enabled, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(plugin_id) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	flag := 0
	if enabled {
		flag = 1
	}
	if _, err := s.db.ExecContext(ctx, query, pluginID, flag, formatTime(time.Now())); err != nil {
		return fmt.Errorf("saving plugin preference: %w", err)
	}

	s.logger.Debug("saved plugin preference", "plugin_id", pluginID, "enabled", enabled)
	return nil
}

// ListPluginPreferences returns every stored preference ordered by plugin id.
func (s *SQLiteStore) ListPluginPreferences(ctx context.Context) ([]*PluginPreference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT plugin_id, enabled, updated_at FROM plugin_preferences ORDER BY plugin_id`)
	if err != nil {
		return nil, fmt.Errorf("querying plugin preferences: %w", err)
	}
	defer rows.Close()

	var prefs []*PluginPreference
	for rows.Next() {
		var p PluginPreference
		var enabled int
		var updatedAt string
		if err := rows.Scan(&p.PluginID, &enabled, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning plugin preference: %w", err)
		}
		p.Enabled = enabled != 0
		if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
			return nil, err
		}
		prefs = append(prefs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plugin preferences: %w", err)
	}
	return prefs, nil
}

// DeletePluginPreference forgets the stored flag for pluginID.
// Deleting a preference that does not exist is not an error.
func (s *SQLiteStore) DeletePluginPreference(ctx context.Context, pluginID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM plugin_preferences WHERE plugin_id = ?`, pluginID); err != nil {
		return fmt.Errorf("deleting plugin preference: %w", err)
	}
	return nil
}
