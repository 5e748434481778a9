// ABOUTME: Stopwatch plugin with start, stop, lap, and reset actions.
// ABOUTME: Multiple stopwatches run side by side, keyed by label.

package builtins

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/2389/altair-gateway/internal/plugins"
)

const defaultStopwatchLabel = "default"

// StopwatchPlugin creates the stopwatch plugin.
func StopwatchPlugin(deps Deps) *plugins.Plugin {
	return &plugins.Plugin{
		ID:          StopwatchID,
		Name:        "Stopwatch",
		Description: "Stopwatch with lap counting and multiple instances",
		Version:     "1.0.0",
		Author:      "Default",
		Declaration: plugins.Declaration{
			Name:        "stopwatch",
			Description: "Controls a stopwatch for measuring time with start, stop, laps, and reset.",
			Parameters: plugins.ObjectSchema(map[string]plugins.Property{
				"action": {
					Type:        plugins.TypeString,
					Description: "The action to perform: 'start' to start, 'stop' to pause, 'lap' for a new lap, or 'reset' to reset.",
					Enum:        []string{"start", "stop", "reset", "lap"},
				},
				"label": {
					Type:        plugins.TypeString,
					Description: "Optional label for the stopwatch, when several should run at the same time.",
				},
			}, "action"),
		},
		Handler:      newStopwatchHandler(deps.now),
		Presentation: "StopwatchComponent",
	}
}

// stopwatch is the state of one labelled stopwatch.
type stopwatch struct {
	running   bool
	startedAt time.Time
	elapsed   time.Duration // accumulated while stopped
	laps      []time.Duration
}

func (s *stopwatch) total(now time.Time) time.Duration {
	if s.running {
		return s.elapsed + now.Sub(s.startedAt)
	}
	return s.elapsed
}

// StopwatchState is the stopwatch plugin's result.
type StopwatchState struct {
	Label     string  `json:"label"`
	Running   bool    `json:"running"`
	ElapsedMS int64   `json:"elapsed_ms"`
	LapsMS    []int64 `json:"laps_ms"`
}

type stopwatchHandler struct {
	now func() time.Time

	mu      sync.Mutex
	watches map[string]*stopwatch
}

func newStopwatchHandler(now func() time.Time) *stopwatchHandler {
	return &stopwatchHandler{now: now, watches: make(map[string]*stopwatch)}
}

type stopwatchInput struct {
	Action string `json:"action"`
	Label  string `json:"label"`
}

func (h *stopwatchHandler) Handle(_ context.Context, event plugins.ToolCallEvent) (string, error) {
	var in stopwatchInput
	if err := event.DecodeArgs(&in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	state, err := h.apply(in.Action, in.Label)
	if err != nil {
		return "", err
	}
	return result(state)
}

func (h *stopwatchHandler) apply(action, label string) (*StopwatchState, error) {
	if label == "" {
		label = defaultStopwatchLabel
	}
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	sw, ok := h.watches[label]
	if !ok {
		sw = &stopwatch{}
		h.watches[label] = sw
	}

	switch action {
	case "start":
		if !sw.running {
			sw.running = true
			sw.startedAt = now
		}
	case "stop":
		if sw.running {
			sw.elapsed += now.Sub(sw.startedAt)
			sw.running = false
		}
	case "lap":
		if sw.running {
			sw.laps = append(sw.laps, sw.total(now))
		}
	case "reset":
		*sw = stopwatch{}
	default:
		return nil, fmt.Errorf("invalid action %q: expected start, stop, reset, or lap", action)
	}

	state := &StopwatchState{
		Label:     label,
		Running:   sw.running,
		ElapsedMS: sw.total(now).Milliseconds(),
		LapsMS:    make([]int64, 0, len(sw.laps)),
	}
	for _, lap := range sw.laps {
		state.LapsMS = append(state.LapsMS, lap.Milliseconds())
	}
	return state, nil
}
