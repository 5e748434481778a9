// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	preferences map[string]*PluginPreference // keyed by plugin ID
	installs    []*InstallEvent              // append order
	todoLists   map[string]*TodoList         // keyed by list name
	timers      map[string]*Timer            // keyed by timer ID

	// Err, when set, is returned by every method.
	Err error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		preferences: make(map[string]*PluginPreference),
		todoLists:   make(map[string]*TodoList),
		timers:      make(map[string]*Timer),
	}
}

// PluginEnabled returns the stored flag for pluginID.
func (m *MockStore) PluginEnabled(ctx context.Context, pluginID string) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return false, false, m.Err
	}
	p, ok := m.preferences[pluginID]
	if !ok {
		return false, false, nil
	}
	return p.Enabled, true, nil
}

// SetPluginEnabled stores the flag for pluginID.
func (m *MockStore) SetPluginEnabled(ctx context.Context, pluginID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.preferences[pluginID] = &PluginPreference{
		PluginID:  pluginID,
		Enabled:   enabled,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// ListPluginPreferences returns all preferences ordered by plugin ID.
func (m *MockStore) ListPluginPreferences(ctx context.Context) ([]*PluginPreference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	prefs := make([]*PluginPreference, 0, len(m.preferences))
	for _, p := range m.preferences {
		c := *p
		prefs = append(prefs, &c)
	}
	sort.Slice(prefs, func(i, j int) bool { return prefs[i].PluginID < prefs[j].PluginID })
	return prefs, nil
}

// DeletePluginPreference forgets the flag for pluginID.
func (m *MockStore) DeletePluginPreference(ctx context.Context, pluginID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	delete(m.preferences, pluginID)
	return nil
}

// RecordInstall appends an install event.
func (m *MockStore) RecordInstall(ctx context.Context, event *InstallEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	for _, existing := range m.installs {
		if existing.ID == event.ID {
			return fmt.Errorf("install event %s: %w", event.ID, ErrDuplicate)
		}
	}

	// Make a copy to avoid external modification
	e := *event
	m.installs = append(m.installs, &e)
	return nil
}

// ListInstallEvents returns up to limit events, newest first.
func (m *MockStore) ListInstallEvents(ctx context.Context, limit int) ([]*InstallEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	events := make([]*InstallEvent, 0, len(m.installs))
	for i := len(m.installs) - 1; i >= 0; i-- {
		e := *m.installs[i]
		events = append(events, &e)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// SaveTodoList replaces the named list.
func (m *MockStore) SaveTodoList(ctx context.Context, list *TodoList) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if list.Name == "" {
		list.Name = DefaultTodoList
	}
	list.UpdatedAt = time.Now().UTC()

	c := TodoList{
		Name:      list.Name,
		Items:     append([]TodoItem{}, list.Items...),
		UpdatedAt: list.UpdatedAt,
	}
	m.todoLists[c.Name] = &c
	return nil
}

// GetTodoList returns the named list.
func (m *MockStore) GetTodoList(ctx context.Context, name string) (*TodoList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if name == "" {
		name = DefaultTodoList
	}
	l, ok := m.todoLists[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &TodoList{
		Name:      l.Name,
		Items:     append([]TodoItem{}, l.Items...),
		UpdatedAt: l.UpdatedAt,
	}, nil
}

// CreateTimer stores a new timer.
func (m *MockStore) CreateTimer(ctx context.Context, timer *Timer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if timer.ID == "" {
		timer.ID = uuid.New().String()
	}
	if timer.StartedAt.IsZero() {
		timer.StartedAt = time.Now().UTC()
	}
	if _, exists := m.timers[timer.ID]; exists {
		return fmt.Errorf("timer %s: %w", timer.ID, ErrDuplicate)
	}
	t := *timer
	m.timers[t.ID] = &t
	return nil
}

// ListActiveTimers returns timers still running at now, soonest first.
func (m *MockStore) ListActiveTimers(ctx context.Context, now time.Time) ([]*Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	var timers []*Timer
	for _, t := range m.timers {
		if t.EndsAt().After(now) {
			c := *t
			timers = append(timers, &c)
		}
	}
	sort.Slice(timers, func(i, j int) bool { return timers[i].EndsAt().Before(timers[j].EndsAt()) })
	return timers, nil
}

// DeleteTimer removes a timer.
func (m *MockStore) DeleteTimer(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.timers[id]; !ok {
		return ErrNotFound
	}
	delete(m.timers, id)
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
