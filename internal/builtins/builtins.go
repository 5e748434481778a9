// ABOUTME: Registers the built-in plugins in their fixed catalog order.
// ABOUTME: Shared dependencies and result encoding for built-in handlers.

package builtins

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/altair-gateway/internal/plugins"
	"github.com/2389/altair-gateway/internal/store"
)

// Built-in plugin ids, in catalog order.
const (
	TimerID       = "timer"
	TodoID        = "todo"
	OpenWebsiteID = "openWebsite"
	ClockID       = "clock"
	StopwatchID   = "stopwatch"
)

// IDs lists the built-in plugin ids in catalog order.
var IDs = []string{TimerID, TodoID, OpenWebsiteID, ClockID, StopwatchID}

// Deps are the collaborators built-in handlers need.
type Deps struct {
	Todos  store.TodoStore
	Timers store.TimerStore
	Now    func() time.Time // defaults to time.Now
	Logger *slog.Logger
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Plugins builds the built-in plugins in catalog order.
func Plugins(deps Deps) []*plugins.Plugin {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("component", "builtins")

	return []*plugins.Plugin{
		TimerPlugin(deps, logger),
		TodoPlugin(deps, logger),
		OpenWebsitePlugin(logger),
		ClockPlugin(deps),
		StopwatchPlugin(deps),
	}
}

// Register inserts every built-in plugin into reg.
func Register(reg *plugins.Registry, deps Deps) error {
	for _, p := range Plugins(deps) {
		if err := reg.RegisterBuiltin(p); err != nil {
			return fmt.Errorf("registering built-in %s: %w", p.ID, err)
		}
	}
	return nil
}

// result encodes a handler's short text result.
func result(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(b), nil
}
