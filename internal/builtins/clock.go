// ABOUTME: Clock plugin reports the current time, date, and timezone.
// ABOUTME: Supports 12h/24h formatting and IANA timezone names.

package builtins

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/altair-gateway/internal/plugins"
)

// ClockPlugin creates the clock plugin.
func ClockPlugin(deps Deps) *plugins.Plugin {
	return &plugins.Plugin{
		ID:          ClockID,
		Name:        "Clock Plugin",
		Description: "Display current time",
		Version:     "1.0.0",
		Author:      "Default",
		Declaration: plugins.Declaration{
			Name:        "get_current_time",
			Description: "Returns the current time, date, and timezone.",
			Parameters: plugins.ObjectSchema(map[string]plugins.Property{
				"format": {
					Type:        plugins.TypeString,
					Description: "Time format ('12h' or '24h')",
					Enum:        []string{"12h", "24h"},
				},
				"timezone": {
					Type:        plugins.TypeString,
					Description: "Desired timezone (e.g. 'Europe/Berlin', 'America/New_York'). Uses the local timezone when omitted.",
				},
			}),
		},
		Handler:      &clockHandler{deps: deps},
		Presentation: "ClockComponent",
	}
}

type clockHandler struct {
	deps Deps
}

type clockInput struct {
	Format   string `json:"format"`
	Timezone string `json:"timezone"`
}

// CurrentTime is the clock plugin's result.
type CurrentTime struct {
	Time      string `json:"time"`
	Date      string `json:"date"`
	Timezone  string `json:"timezone"`
	Timestamp int64  `json:"timestamp"`
}

func (h *clockHandler) Handle(_ context.Context, event plugins.ToolCallEvent) (string, error) {
	var in clockInput
	if err := event.DecodeArgs(&in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	now, err := currentTime(h.deps.now(), in.Format, in.Timezone)
	if err != nil {
		return "", err
	}
	return result(now)
}

// currentTime formats now in the requested format and timezone.
func currentTime(now time.Time, format, timezone string) (*CurrentTime, error) {
	loc := now.Location()
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", timezone, err)
		}
		loc = l
	}
	now = now.In(loc)

	layout := "15:04:05"
	switch format {
	case "", "24h":
	case "12h":
		layout = "03:04:05 PM"
	default:
		return nil, fmt.Errorf("invalid format %q: expected 12h or 24h", format)
	}

	return &CurrentTime{
		Time:      now.Format(layout),
		Date:      now.Format("Monday, January 2, 2006"),
		Timezone:  loc.String(),
		Timestamp: now.UnixMilli(),
	}, nil
}
