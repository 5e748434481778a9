// ABOUTME: Todo plugin replaces the todo list with the snapshot the model sends.
// ABOUTME: The list arrives as a JSON string of {id, text, done} items.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/altair-gateway/internal/plugins"
	"github.com/2389/altair-gateway/internal/store"
)

// TodoPlugin creates the todo list plugin.
func TodoPlugin(deps Deps, logger *slog.Logger) *plugins.Plugin {
	h := &todoHandler{store: deps.Todos, logger: logger}
	return &plugins.Plugin{
		ID:          TodoID,
		Name:        "Todo List Plugin",
		Description: "Create and manage todo lists",
		Version:     "1.0.0",
		Author:      "Default",
		Declaration: plugins.Declaration{
			Name:        "manage_todo",
			Description: "Manages a todo list. Provide a JSON string containing an array of todo objects ({id, text, done}).",
			Parameters: plugins.ObjectSchema(map[string]plugins.Property{
				"todos": {
					Type:        plugins.TypeString,
					Description: `JSON string of an array of todos with properties id, text and done. Example: '[{"id":"1","text":"Buy groceries","done":false}]'`,
				},
			}, "todos"),
		},
		Handler:      h,
		Presentation: "TodoPlugin",
		Guidance: &plugins.Guidance{
			Enabled:  "You can generate or update a todo list (with items to check and edit) when asked.",
			Disabled: "The todo list functionality is currently disabled. If asked to manage todos, politely inform the user that the todo list feature is currently disabled.",
		},
	}
}

type todoHandler struct {
	store  store.TodoStore
	logger *slog.Logger
}

type todoInput struct {
	Todos json.RawMessage `json:"todos"`
}

func (h *todoHandler) Handle(ctx context.Context, event plugins.ToolCallEvent) (string, error) {
	var in todoInput
	if err := event.DecodeArgs(&in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	items, err := parseTodos(in.Todos)
	if err != nil {
		return "", err
	}

	if h.store != nil {
		list := &store.TodoList{Name: store.DefaultTodoList, Items: items}
		if err := h.store.SaveTodoList(ctx, list); err != nil {
			return "", fmt.Errorf("saving todo list: %w", err)
		}
	}

	done := 0
	for _, it := range items {
		if it.Done {
			done++
		}
	}
	h.logger.Info("todo list updated", "items", len(items), "done", done)
	return result(map[string]any{"items": len(items), "done": done})
}

// parseTodos accepts the list either as a JSON string (the declared form)
// or as an already-decoded array.
func parseTodos(raw json.RawMessage) ([]store.TodoItem, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.New("invalid input: todos is required")
	}

	data := []byte(raw)
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		data = []byte(encoded)
	}

	var items []store.TodoItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("invalid todos format, array expected: %w", err)
	}
	if items == nil {
		return nil, errors.New("invalid todos format, array expected")
	}
	return items, nil
}
