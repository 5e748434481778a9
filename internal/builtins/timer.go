// ABOUTME: Timer plugin starts countdown timers of up to one hour.
// ABOUTME: Started timers are persisted so the UI can show remaining time.

package builtins

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/2389/altair-gateway/internal/plugins"
	"github.com/2389/altair-gateway/internal/store"
)

// MaxTimerSeconds is the longest countdown the timer accepts.
const MaxTimerSeconds = 3600

const defaultTimerLabel = "Timer"

// TimerPlugin creates the timer plugin.
func TimerPlugin(deps Deps, logger *slog.Logger) *plugins.Plugin {
	h := &timerHandler{deps: deps, logger: logger}
	return &plugins.Plugin{
		ID:          TimerID,
		Name:        "Timer Plugin",
		Description: "Create countdown timers",
		Version:     "1.0.0",
		Author:      "Default",
		Declaration: plugins.Declaration{
			Name:        "start_timer",
			Description: "Starts a countdown timer for a specified number of seconds.",
			Parameters: plugins.ObjectSchema(map[string]plugins.Property{
				"seconds": {
					Type:        plugins.TypeInteger,
					Description: "Duration of the timer in seconds. Maximum allowed is 3600 (1 hour).",
				},
				"label": {
					Type:        plugins.TypeString,
					Description: "Optional label for the timer. Default is 'Timer'.",
				},
			}, "seconds"),
		},
		Handler:      h,
		Presentation: "TimerPlugin",
		Guidance: &plugins.Guidance{
			Enabled:  "You can start timers when asked.",
			Disabled: "The timer functionality is currently disabled. If asked to create a timer, politely inform the user that the timer feature is currently disabled.",
		},
	}
}

type timerHandler struct {
	deps   Deps
	logger *slog.Logger
}

type timerInput struct {
	Seconds float64 `json:"seconds"`
	Label   string  `json:"label"`
}

func (h *timerHandler) Handle(ctx context.Context, event plugins.ToolCallEvent) (string, error) {
	var in timerInput
	if err := event.DecodeArgs(&in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if in.Seconds <= 0 || in.Seconds > MaxTimerSeconds || in.Seconds != math.Trunc(in.Seconds) {
		return "", fmt.Errorf("invalid timer duration %v: must be a whole number of seconds between 1 and %d", in.Seconds, MaxTimerSeconds)
	}
	label := in.Label
	if label == "" {
		label = defaultTimerLabel
	}

	timer := &store.Timer{
		Label:           label,
		DurationSeconds: int(in.Seconds),
		StartedAt:       h.deps.now().UTC(),
	}
	if h.deps.Timers != nil {
		if err := h.deps.Timers.CreateTimer(ctx, timer); err != nil {
			return "", fmt.Errorf("saving timer: %w", err)
		}
	}

	h.logger.Info("timer started", "timer_id", timer.ID, "label", label, "seconds", timer.DurationSeconds)
	return result(map[string]any{
		"id":      timer.ID,
		"label":   label,
		"seconds": timer.DurationSeconds,
		"ends_at": timer.EndsAt(),
	})
}
