// ABOUTME: Ordered plugin catalog with register/unregister and built-in protection.
// ABOUTME: Built-ins come first in fixed order; dynamic plugins follow in registration order.

package plugins

import (
	"log/slog"
	"sync"
)

// Registry is the catalog of known plugins. It is the only mutable shared
// state of the core and is mutated exclusively through its methods.
type Registry struct {
	mu       sync.RWMutex
	order    []string           // catalog order of plugin ids
	plugins  map[string]*Plugin // id -> plugin
	builtins map[string]struct{}
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		plugins:  make(map[string]*Plugin),
		builtins: make(map[string]struct{}),
		logger:   logger.With("component", "registry"),
	}
}

// validate returns a ValidationError naming the first missing field.
func validate(p *Plugin) error {
	switch {
	case p == nil:
		return &ValidationError{Field: "plugin"}
	case p.ID == "":
		return &ValidationError{Field: "id"}
	case p.Name == "":
		return &ValidationError{Field: "name"}
	case p.Handler == nil:
		return &ValidationError{Field: "handler"}
	case p.Declaration.Name == "":
		return &ValidationError{Field: "declaration"}
	}
	return nil
}

// RegisterBuiltin inserts a plugin into the protected built-in set.
// Built-ins are registered once at startup, before any dynamic plugin.
func (r *Registry) RegisterBuiltin(p *Plugin) error {
	if err := validate(p); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.put(p)
	r.builtins[p.ID] = struct{}{}

	r.logger.Info("built-in plugin registered",
		"plugin_id", p.ID,
		"capability", p.Declaration.Name,
	)
	return nil
}

// Register validates and stores a plugin. An existing record with the same
// id is overwritten in place; that is logged as a warning, not an error.
func (r *Registry) Register(p *Plugin) error {
	if err := validate(p); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.ID]; exists {
		r.logger.Warn("plugin already registered, overwriting", "plugin_id", p.ID)
	}
	r.put(p)

	r.logger.Info("=== PLUGIN REGISTERED ===",
		"plugin_id", p.ID,
		"capability", p.Declaration.Name,
		"total_plugins", len(r.plugins),
	)
	return nil
}

// put stores p, keeping the catalog position of an existing id.
// Must be called with mu held.
func (r *Registry) put(p *Plugin) {
	if _, exists := r.plugins[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.plugins[p.ID] = p
}

// Unregister removes a dynamic plugin. Built-ins are refused with a
// ProtectedEntityError and unknown ids with a NotFoundError; in both cases
// the catalog is left unchanged.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, builtin := r.builtins[id]; builtin {
		r.logger.Warn("refusing to unregister built-in plugin", "plugin_id", id)
		return &ProtectedEntityError{ID: id}
	}
	if _, exists := r.plugins[id]; !exists {
		r.logger.Warn("plugin not found for unregistration", "plugin_id", id)
		return &NotFoundError{ID: id}
	}

	delete(r.plugins, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info("=== PLUGIN UNREGISTERED ===",
		"plugin_id", id,
		"total_plugins", len(r.plugins),
	)
	return nil
}

// Lookup returns the plugin registered under id.
func (r *Registry) Lookup(id string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[id]
	return p, ok
}

// List returns all plugins in catalog order.
func (r *Registry) List() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Plugin, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plugins[id])
	}
	return out
}

// IDs returns all plugin ids in catalog order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// IsBuiltin reports whether id belongs to the protected built-in set.
func (r *Registry) IsBuiltin(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builtins[id]
	return ok
}

// Len returns the number of plugins in the catalog.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}
