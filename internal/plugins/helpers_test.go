// ABOUTME: Shared test helpers for plugins package tests.
// ABOUTME: Provides fake handlers, an in-memory preference store, and a recording ack sender.

package plugins

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingHandler counts invocations and remembers the events it saw.
type recordingHandler struct {
	mu     sync.Mutex
	events []ToolCallEvent
	output string
	err    error
	panics bool
}

func (h *recordingHandler) Handle(_ context.Context, event ToolCallEvent) (string, error) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	if h.panics {
		panic("handler blew up")
	}
	return h.output, h.err
}

func (h *recordingHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func newTestPlugin(id, capability string, h Handler) *Plugin {
	if h == nil {
		h = &recordingHandler{}
	}
	return &Plugin{
		ID:          id,
		Name:        id + " plugin",
		Description: "test plugin " + id,
		Version:     "1.0.0",
		Declaration: Declaration{
			Name:        capability,
			Description: "does " + capability,
			Parameters:  ObjectSchema(nil),
		},
		Handler:      h,
		Presentation: id + "View",
	}
}

// memPrefs is an in-memory PreferenceStore.
type memPrefs struct {
	mu    sync.Mutex
	flags map[string]bool
	err   error
}

func newMemPrefs() *memPrefs {
	return &memPrefs{flags: make(map[string]bool)}
}

func (m *memPrefs) PluginEnabled(_ context.Context, id string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, false, m.err
	}
	enabled, ok := m.flags[id]
	return enabled, ok, nil
}

func (m *memPrefs) SetPluginEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.flags[id] = enabled
	return nil
}

var errStoreDown = errors.New("store unavailable")

// ackRecorder is an AckSender that keeps every batch it was handed.
type ackRecorder struct {
	mu      sync.Mutex
	batches [][]Acknowledgement
	err     error
}

func (r *ackRecorder) SendAcks(_ context.Context, acks []Acknowledgement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, acks)
	return r.err
}

// scopedRecorder is an ackRecorder bound to a dedupe scope.
type scopedRecorder struct {
	ackRecorder
	scope string
}

func (r *scopedRecorder) DedupeScope() string { return r.scope }

func (r *ackRecorder) all() []Acknowledgement {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Acknowledgement
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

// setDeduper is a Deduper backed by a plain set.
type setDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *setDeduper) CheckAndMark(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return true
	}
	d.seen[key] = true
	return false
}
