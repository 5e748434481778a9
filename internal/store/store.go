// ABOUTME: Store interfaces and data types for altair-gateway persistence
// ABOUTME: Defines plugin preferences, install audit events, todo lists, and timers

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when inserting an entity whose ID already exists
var ErrDuplicate = errors.New("already exists")

// DefaultTodoList is the list name used when a caller does not pick one.
const DefaultTodoList = "default"

// PluginPreference is the persisted enabled flag of a plugin.
type PluginPreference struct {
	PluginID  string
	Enabled   bool
	UpdatedAt time.Time
}

// InstallEvent is the audit record of a single installation attempt.
type InstallEvent struct {
	ID        string
	Kind      string // "archive" or "repository"; empty if classification failed
	Source    string // archive filename or repository URL
	PluginID  string // resulting plugin id on success
	State     string // final state of the attempt
	Error     string
	Digest    string // blake2b-256 of the archive contents, hex
	CreatedAt time.Time
}

// TodoItem is one entry of a todo list.
type TodoItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// TodoList is a named, whole-list snapshot of todo items.
type TodoList struct {
	Name      string
	Items     []TodoItem
	UpdatedAt time.Time
}

// Timer is a countdown started by the timer plugin.
type Timer struct {
	ID              string
	Label           string
	DurationSeconds int
	StartedAt       time.Time
}

// EndsAt returns when the timer reaches zero.
func (t *Timer) EndsAt() time.Time {
	return t.StartedAt.Add(time.Duration(t.DurationSeconds) * time.Second)
}

// Remaining returns the time left at now, never negative.
func (t *Timer) Remaining(now time.Time) time.Duration {
	left := t.EndsAt().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// PreferenceStore persists per-plugin enabled flags.
type PreferenceStore interface {
	// PluginEnabled reports the stored flag; found is false when nothing is stored.
	PluginEnabled(ctx context.Context, pluginID string) (enabled bool, found bool, err error)
	SetPluginEnabled(ctx context.Context, pluginID string, enabled bool) error
	ListPluginPreferences(ctx context.Context) ([]*PluginPreference, error)
	DeletePluginPreference(ctx context.Context, pluginID string) error
}

// InstallLog records installation attempts.
type InstallLog interface {
	RecordInstall(ctx context.Context, event *InstallEvent) error
	ListInstallEvents(ctx context.Context, limit int) ([]*InstallEvent, error)
}

// TodoStore persists todo list snapshots.
type TodoStore interface {
	SaveTodoList(ctx context.Context, list *TodoList) error
	GetTodoList(ctx context.Context, name string) (*TodoList, error)
}

// TimerStore persists started timers.
type TimerStore interface {
	CreateTimer(ctx context.Context, timer *Timer) error
	ListActiveTimers(ctx context.Context, now time.Time) ([]*Timer, error)
	DeleteTimer(ctx context.Context, id string) error
}

// Store combines every persistence concern of the gateway.
type Store interface {
	PreferenceStore
	InstallLog
	TodoStore
	TimerStore

	// Close releases any resources held by the store
	Close() error
}
