// ABOUTME: Routes model tool calls to every enabled plugin declaring the capability.
// ABOUTME: Handler failures are absorbed; acknowledgements are always success, sent after a delay.

package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AckDelay is how long acknowledgements are held back so the model does not
// narrate them before plugin side effects have settled.
const AckDelay = 200 * time.Millisecond

// AckResponse is the payload of an acknowledgement.
type AckResponse struct {
	Output              map[string]any `json:"output"`
	ExcludeFromReadback bool           `json:"excludeFromReadback"`
}

// Acknowledgement confirms to the model that an invocation was processed.
type Acknowledgement struct {
	ID       string      `json:"id"`
	Response AckResponse `json:"response"`
}

// successAck builds the unconditional success acknowledgement for an invocation.
func successAck(invocationID string) Acknowledgement {
	return Acknowledgement{
		ID: invocationID,
		Response: AckResponse{
			Output:              map[string]any{"success": true},
			ExcludeFromReadback: true,
		},
	}
}

// AckSender transmits acknowledgements back to the model.
type AckSender interface {
	SendAcks(ctx context.Context, acks []Acknowledgement) error
}

// ScopedSender is an AckSender whose invocation ids are only unique within
// a scope, such as one model session. Dedupe keys are prefixed with it.
type ScopedSender interface {
	AckSender
	DedupeScope() string
}

// Deduper reports whether an invocation id has already been seen, marking
// it as seen if not.
type Deduper interface {
	CheckAndMark(key string) bool
}

// Invocation records one handler run during a dispatch cycle.
type Invocation struct {
	PluginID     string
	Capability   string
	InvocationID string
	Output       string
}

// DispatchReport summarizes a dispatch cycle. It is informational only: the
// acknowledgement sent upstream does not depend on it.
type DispatchReport struct {
	Invocations []Invocation
	Errors      []*HandlerError
	Duplicates  []string
	Ack         *Task
}

// DispatcherConfig contains configuration options for the Dispatcher.
type DispatcherConfig struct {
	Registry  *Registry
	States    StateSource
	Scheduler *Scheduler
	Dedupe    Deduper // optional
	Logger    *slog.Logger
}

// Dispatcher delivers tool calls to plugin handlers.
type Dispatcher struct {
	registry  *Registry
	states    StateSource
	scheduler *Scheduler
	dedupe    Deduper
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = NewScheduler(logger)
	}
	return &Dispatcher{
		registry:  cfg.Registry,
		states:    cfg.States,
		scheduler: scheduler,
		dedupe:    cfg.Dedupe,
		logger:    logger.With("component", "dispatcher"),
	}
}

// OnToolCall runs every matching enabled handler for each event in call,
// synchronously and in catalog order, then schedules one delayed success
// acknowledgement per event through sender. ctx is the owning session's
// context: if it ends before the delay elapses the acknowledgement is dropped.
func (d *Dispatcher) OnToolCall(ctx context.Context, call ToolCall, sender AckSender) *DispatchReport {
	report := &DispatchReport{}
	if len(call.FunctionCalls) == 0 {
		return report
	}

	state, ok := d.loadStates(ctx)
	catalog := d.registry.List()
	if !ok {
		catalog = nil
	}

	for _, event := range call.FunctionCalls {
		if d.dedupe != nil && event.ID != "" && d.dedupe.CheckAndMark(dedupeKey(sender, event.ID)) {
			d.logger.Info("duplicate invocation, skipping handlers",
				"capability", event.Name,
				"invocation_id", event.ID,
			)
			report.Duplicates = append(report.Duplicates, event.ID)
			continue
		}

		matched := 0
		for _, p := range catalog {
			if p.Declaration.Name != event.Name || !state.Enabled(p.ID) {
				continue
			}
			matched++

			d.logger.Info("→ dispatching tool call",
				"capability", event.Name,
				"plugin_id", p.ID,
				"invocation_id", event.ID,
			)
			output, err := d.invoke(ctx, p, event)
			if err != nil {
				herr := &HandlerError{
					PluginID:     p.ID,
					Capability:   event.Name,
					InvocationID: event.ID,
					Err:          err,
				}
				d.logger.Error("plugin handler failed", "error", herr)
				report.Errors = append(report.Errors, herr)
				continue
			}
			report.Invocations = append(report.Invocations, Invocation{
				PluginID:     p.ID,
				Capability:   event.Name,
				InvocationID: event.ID,
				Output:       output,
			})
		}

		if matched == 0 {
			d.logger.Warn("no enabled plugin declares capability",
				"capability", event.Name,
				"invocation_id", event.ID,
			)
		}
	}

	acks := make([]Acknowledgement, 0, len(call.FunctionCalls))
	for _, event := range call.FunctionCalls {
		acks = append(acks, successAck(event.ID))
	}
	report.Ack = d.scheduler.After(ctx, AckDelay, "tool-response", func(ctx context.Context) {
		if err := sender.SendAcks(ctx, acks); err != nil {
			d.logger.Error("sending tool response", "error", err, "count", len(acks))
			return
		}
		d.logger.Debug("← tool response sent", "count", len(acks))
	})

	return report
}

// dedupeKey scopes an invocation id to its sender when the sender has a scope.
func dedupeKey(sender AckSender, invocationID string) string {
	if scoped, ok := sender.(ScopedSender); ok {
		return scoped.DedupeScope() + "/" + invocationID
	}
	return invocationID
}

// invoke calls the plugin handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, p *Plugin, event ToolCallEvent) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Handler.Handle(ctx, event)
}

// loadStates reads enabled flags. When the preference store is unavailable
// no plugin can be shown to be enabled, so the cycle runs no handlers.
func (d *Dispatcher) loadStates(ctx context.Context) (PluginState, bool) {
	if d.states == nil {
		return PluginState{}, true
	}
	state, err := d.states.States(ctx)
	if err != nil {
		d.logger.Error("loading plugin states, skipping handlers", "error", err)
		return nil, false
	}
	return state, true
}
