// ABOUTME: Behavioral tests shared by every Store implementation
// ABOUTME: Runs the same suite against MockStore and SQLiteStore

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeImplementations(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"mock": func(t *testing.T) Store { return NewMockStore() },
		"sqlite": func(t *testing.T) Store {
			s := newTestStore(t)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStorePreferences(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			_, found, err := s.PluginEnabled(ctx, "timer")
			require.NoError(t, err)
			assert.False(t, found, "unset preference must not be found")

			require.NoError(t, s.SetPluginEnabled(ctx, "timer", false))
			enabled, found, err := s.PluginEnabled(ctx, "timer")
			require.NoError(t, err)
			assert.True(t, found)
			assert.False(t, enabled)

			require.NoError(t, s.SetPluginEnabled(ctx, "timer", true))
			enabled, _, err = s.PluginEnabled(ctx, "timer")
			require.NoError(t, err)
			assert.True(t, enabled)

			require.NoError(t, s.SetPluginEnabled(ctx, "clock", false))
			prefs, err := s.ListPluginPreferences(ctx)
			require.NoError(t, err)
			require.Len(t, prefs, 2)
			assert.Equal(t, "clock", prefs[0].PluginID)
			assert.Equal(t, "timer", prefs[1].PluginID)
			assert.False(t, prefs[1].UpdatedAt.IsZero())

			require.NoError(t, s.DeletePluginPreference(ctx, "clock"))
			require.NoError(t, s.DeletePluginPreference(ctx, "clock"))
			_, found, err = s.PluginEnabled(ctx, "clock")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestStoreInstallEvents(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			first := &InstallEvent{
				Kind:      "archive",
				Source:    "calculator.zip",
				PluginID:  "calculator",
				State:     "registered",
				Digest:    "abc123",
				CreatedAt: base,
			}
			second := &InstallEvent{
				Kind:      "repository",
				Source:    "https://github.com/acme/x",
				State:     "failed",
				Error:     "boom",
				CreatedAt: base.Add(time.Minute),
			}
			require.NoError(t, s.RecordInstall(ctx, first))
			require.NoError(t, s.RecordInstall(ctx, second))
			assert.NotEmpty(t, first.ID)

			events, err := s.ListInstallEvents(ctx, 0)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, second.ID, events[0].ID, "newest first")
			assert.Equal(t, "boom", events[0].Error)
			assert.Empty(t, events[0].PluginID)
			assert.Equal(t, "calculator", events[1].PluginID)
			assert.Equal(t, "abc123", events[1].Digest)
			assert.True(t, base.Equal(events[1].CreatedAt))

			limited, err := s.ListInstallEvents(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)

			dup := &InstallEvent{ID: first.ID, Kind: "archive", Source: "x", State: "failed"}
			assert.ErrorIs(t, s.RecordInstall(ctx, dup), ErrDuplicate)
		})
	}
}

func TestStoreTodoLists(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			_, err := s.GetTodoList(ctx, "")
			assert.True(t, errors.Is(err, ErrNotFound))

			list := &TodoList{Items: []TodoItem{
				{ID: "1", Text: "Buy milk"},
				{ID: "2", Text: "Call mum", Done: true},
			}}
			require.NoError(t, s.SaveTodoList(ctx, list))
			assert.Equal(t, DefaultTodoList, list.Name)

			got, err := s.GetTodoList(ctx, DefaultTodoList)
			require.NoError(t, err)
			assert.Equal(t, list.Items, got.Items)

			require.NoError(t, s.SaveTodoList(ctx, &TodoList{Name: DefaultTodoList}))
			got, err = s.GetTodoList(ctx, DefaultTodoList)
			require.NoError(t, err)
			assert.Empty(t, got.Items, "save replaces the whole list")
		})
	}
}

func TestStoreTimers(t *testing.T) {
	for name, open := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			long := &Timer{Label: "Tea", DurationSeconds: 300, StartedAt: now}
			short := &Timer{Label: "Egg", DurationSeconds: 60, StartedAt: now}
			done := &Timer{Label: "Old", DurationSeconds: 10, StartedAt: now.Add(-time.Hour)}
			for _, tm := range []*Timer{long, short, done} {
				require.NoError(t, s.CreateTimer(ctx, tm))
				assert.NotEmpty(t, tm.ID)
			}

			active, err := s.ListActiveTimers(ctx, now)
			require.NoError(t, err)
			require.Len(t, active, 2)
			assert.Equal(t, "Egg", active[0].Label)
			assert.Equal(t, "Tea", active[1].Label)
			assert.Equal(t, 4*time.Minute, active[1].Remaining(now.Add(time.Minute)))

			require.NoError(t, s.DeleteTimer(ctx, short.ID))
			assert.ErrorIs(t, s.DeleteTimer(ctx, short.ID), ErrNotFound)
			assert.ErrorIs(t, s.CreateTimer(ctx, &Timer{ID: long.ID, DurationSeconds: 1}), ErrDuplicate)
		})
	}
}

func TestTimerRemainingNeverNegative(t *testing.T) {
	tm := &Timer{DurationSeconds: 5, StartedAt: time.Unix(0, 0)}
	assert.Equal(t, time.Duration(0), tm.Remaining(time.Unix(100, 0)))
}

func TestMockStoreErr(t *testing.T) {
	s := NewMockStore()
	s.Err = errors.New("disk on fire")
	ctx := context.Background()

	_, _, err := s.PluginEnabled(ctx, "timer")
	assert.Error(t, err)
	assert.Error(t, s.SetPluginEnabled(ctx, "timer", true))
	assert.Error(t, s.RecordInstall(ctx, &InstallEvent{}))
}
