// ABOUTME: Todo list persistence for SQLiteStore
// ABOUTME: Lists are saved as whole snapshots, the way the todo plugin replaces them

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SaveTodoList replaces the named list with list.Items.
func (s *SQLiteStore) SaveTodoList(ctx context.Context, list *TodoList) error {
	if list.Name == "" {
		list.Name = DefaultTodoList
	}
	items := list.Items
	if items == nil {
		items = []TodoItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding todo items: %w", err)
	}
	list.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO todo_lists (name, items_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			items_json = excluded.items_json,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, list.Name, string(data), formatTime(list.UpdatedAt)); err != nil {
		return fmt.Errorf("saving todo list: %w", err)
	}

	s.logger.Debug("saved todo list", "name", list.Name, "items", len(items))
	return nil
}

// GetTodoList returns the named list. Returns ErrNotFound if it was never saved.
func (s *SQLiteStore) GetTodoList(ctx context.Context, name string) (*TodoList, error) {
	if name == "" {
		name = DefaultTodoList
	}

	var data, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT items_json, updated_at FROM todo_lists WHERE name = ?`, name,
	).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying todo list: %w", err)
	}

	list := &TodoList{Name: name}
	if err := json.Unmarshal([]byte(data), &list.Items); err != nil {
		return nil, fmt.Errorf("decoding todo items: %w", err)
	}
	if list.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return list, nil
}
