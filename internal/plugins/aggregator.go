// ABOUTME: Builds the capability declarations and guidance briefing for the model.
// ABOUTME: Enabled flags come from the preference store; unset flags mean enabled.

package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ReadbackInstruction tells the model never to narrate machine-internal
// acknowledgement content.
const ReadbackInstruction = `IMPORTANT INSTRUCTION: Never read aloud any technical information such as "codeExecutionResult", "OUTCOME_OK", "output", "success:True", or any JSON structures or function call results. These are internal messages meant only for the system.`

// PreferenceStore persists the per-plugin enabled flag.
type PreferenceStore interface {
	PluginEnabled(ctx context.Context, pluginID string) (enabled bool, found bool, err error)
	SetPluginEnabled(ctx context.Context, pluginID string, enabled bool) error
}

// PluginState maps plugin id to its enabled flag.
type PluginState map[string]bool

// Enabled applies the default rule: ids with no entry are enabled.
func (s PluginState) Enabled(id string) bool {
	enabled, ok := s[id]
	return !ok || enabled
}

// StateSource loads the current PluginState.
type StateSource interface {
	States(ctx context.Context) (PluginState, error)
}

// Aggregator derives model-facing configuration from the catalog.
type Aggregator struct {
	registry *Registry
	prefs    PreferenceStore
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator over registry and prefs.
func NewAggregator(registry *Registry, prefs PreferenceStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		registry: registry,
		prefs:    prefs,
		logger:   logger.With("component", "aggregator"),
	}
}

// States loads the enabled flag of every catalog plugin.
func (a *Aggregator) States(ctx context.Context) (PluginState, error) {
	ids := a.registry.IDs()
	state := make(PluginState, len(ids))
	for _, id := range ids {
		enabled, found, err := a.prefs.PluginEnabled(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading preference for %s: %w", id, err)
		}
		state[id] = !found || enabled
	}
	return state, nil
}

// SetEnabled persists the enabled flag of a catalog plugin.
func (a *Aggregator) SetEnabled(ctx context.Context, pluginID string, enabled bool) error {
	if _, ok := a.registry.Lookup(pluginID); !ok {
		return &NotFoundError{ID: pluginID}
	}
	if err := a.prefs.SetPluginEnabled(ctx, pluginID, enabled); err != nil {
		return fmt.Errorf("saving preference for %s: %w", pluginID, err)
	}
	a.logger.Info("plugin preference updated", "plugin_id", pluginID, "enabled", enabled)
	return nil
}

// DeclarationsFor returns the declarations of enabled plugins in catalog order.
func (a *Aggregator) DeclarationsFor(state PluginState) []Declaration {
	var out []Declaration
	for _, p := range a.registry.List() {
		if state.Enabled(p.ID) {
			out = append(out, p.Declaration)
		}
	}
	return out
}

// BuildGuidance renders the system-instruction briefing. Every plugin with
// bespoke guidance contributes either its usage hint or its unavailability
// notice, so a disabled capability is always called out explicitly.
func (a *Aggregator) BuildGuidance(state PluginState) string {
	var enabledIDs []string
	var lines []string
	for _, p := range a.registry.List() {
		on := state.Enabled(p.ID)
		if on {
			enabledIDs = append(enabledIDs, p.ID)
		}
		if p.Guidance == nil {
			continue
		}
		if on && p.Guidance.Enabled != "" {
			lines = append(lines, p.Guidance.Enabled)
		} else if !on {
			lines = append(lines, disabledNotice(p))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Currently available tools: %s.\n", strings.Join(enabledIDs, ", "))
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(ReadbackInstruction)
	return b.String()
}

func disabledNotice(p *Plugin) string {
	if p.Guidance.Disabled != "" {
		return p.Guidance.Disabled
	}
	return fmt.Sprintf("The %s feature is currently unavailable. If asked to use it, politely inform the user that it is currently disabled.", p.Name)
}
