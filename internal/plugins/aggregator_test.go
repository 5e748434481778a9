// ABOUTME: Tests for capability aggregation and guidance rendering.
// ABOUTME: Covers the default-enabled rule and the disabled-never-declared property.

package plugins

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestAggregator(t *testing.T, prefs *memPrefs, ids ...string) (*Registry, *Aggregator) {
	t.Helper()
	reg := NewRegistry(testLogger())
	for _, id := range ids {
		require.NoError(t, reg.RegisterBuiltin(newTestPlugin(id, "cap_"+id, nil)))
	}
	return reg, NewAggregator(reg, prefs, testLogger())
}

func declNames(decls []Declaration) []string {
	names := make([]string, 0, len(decls))
	for _, d := range decls {
		names = append(names, d.Name)
	}
	return names
}

func TestAggregatorStates(t *testing.T) {
	ctx := context.Background()

	t.Run("absent preference means enabled", func(t *testing.T) {
		_, agg := newTestAggregator(t, newMemPrefs(), "timer", "todo")

		state, err := agg.States(ctx)
		require.NoError(t, err)
		assert.True(t, state.Enabled("timer"))
		assert.True(t, state.Enabled("todo"))
	})

	t.Run("stored preference wins", func(t *testing.T) {
		prefs := newMemPrefs()
		prefs.flags["timer"] = false
		_, agg := newTestAggregator(t, prefs, "timer", "todo")

		state, err := agg.States(ctx)
		require.NoError(t, err)
		assert.False(t, state.Enabled("timer"))
		assert.True(t, state.Enabled("todo"))
	})

	t.Run("store failure is returned", func(t *testing.T) {
		prefs := newMemPrefs()
		prefs.err = errStoreDown
		_, agg := newTestAggregator(t, prefs, "timer")

		_, err := agg.States(ctx)
		assert.ErrorIs(t, err, errStoreDown)
	})
}

func TestAggregatorSetEnabled(t *testing.T) {
	ctx := context.Background()
	prefs := newMemPrefs()
	_, agg := newTestAggregator(t, prefs, "timer")

	require.NoError(t, agg.SetEnabled(ctx, "timer", false))
	assert.False(t, prefs.flags["timer"])

	err := agg.SetEnabled(ctx, "ghost", true)
	assert.ErrorIs(t, err, ErrNotFound)
	_, stored := prefs.flags["ghost"]
	assert.False(t, stored)
}

func TestAggregatorDeclarationsFor(t *testing.T) {
	_, agg := newTestAggregator(t, newMemPrefs(), "timer", "todo", "clock")

	decls := agg.DeclarationsFor(PluginState{"todo": false})
	assert.Equal(t, []string{"cap_timer", "cap_clock"}, declNames(decls))

	assert.Empty(t, agg.DeclarationsFor(PluginState{"timer": false, "todo": false, "clock": false}))
}

func TestTimerToggleScenario(t *testing.T) {
	ctx := context.Background()
	prefs := newMemPrefs()
	reg := NewRegistry(testLogger())
	timer := &recordingHandler{}
	require.NoError(t, reg.RegisterBuiltin(newTestPlugin("timer", "start_timer", timer)))
	require.NoError(t, reg.RegisterBuiltin(newTestPlugin("todo", "manage_todo", nil)))
	agg := NewAggregator(reg, prefs, testLogger())

	require.NoError(t, agg.SetEnabled(ctx, "timer", false))
	state, err := agg.States(ctx)
	require.NoError(t, err)
	assert.NotContains(t, declNames(agg.DeclarationsFor(state)), "start_timer")

	d := NewDispatcher(DispatcherConfig{Registry: reg, States: agg, Logger: testLogger()})
	sender := &ackRecorder{}
	report := d.OnToolCall(ctx, ToolCall{FunctionCalls: []ToolCallEvent{
		{ID: "call-1", Name: "start_timer", Args: map[string]any{"seconds": 60}},
	}}, sender)
	report.Ack.Wait()
	assert.Zero(t, timer.calls(), "disabled timer must not be invoked")
	require.Len(t, sender.all(), 1)

	require.NoError(t, agg.SetEnabled(ctx, "timer", true))
	state, err = agg.States(ctx)
	require.NoError(t, err)
	assert.Contains(t, declNames(agg.DeclarationsFor(state)), "start_timer")
}

func TestAggregatorBuildGuidance(t *testing.T) {
	reg := NewRegistry(testLogger())
	timer := newTestPlugin("timer", "start_timer", nil)
	timer.Name = "Timer"
	timer.Guidance = &Guidance{Enabled: "Use start_timer for countdowns."}
	todo := newTestPlugin("todo", "manage_todo", nil)
	todo.Name = "Todo List"
	todo.Guidance = &Guidance{
		Enabled:  "Use manage_todo for the list.",
		Disabled: "The todo list is off.",
	}
	clock := newTestPlugin("clock", "get_current_time", nil)
	require.NoError(t, reg.RegisterBuiltin(timer))
	require.NoError(t, reg.RegisterBuiltin(todo))
	require.NoError(t, reg.RegisterBuiltin(clock))
	agg := NewAggregator(reg, newMemPrefs(), testLogger())

	t.Run("all enabled", func(t *testing.T) {
		g := agg.BuildGuidance(PluginState{})
		assert.True(t, strings.HasPrefix(g, "Currently available tools: timer, todo, clock.\n"))
		assert.Contains(t, g, "Use start_timer for countdowns.")
		assert.Contains(t, g, "Use manage_todo for the list.")
		assert.True(t, strings.HasSuffix(g, ReadbackInstruction))
	})

	t.Run("disabled plugins are called out", func(t *testing.T) {
		g := agg.BuildGuidance(PluginState{"timer": false, "todo": false})
		assert.Contains(t, g, "Currently available tools: clock.")
		assert.NotContains(t, g, "Use start_timer")
		assert.Contains(t, g, "The Timer feature is currently unavailable.")
		assert.Contains(t, g, "The todo list is off.")
	})
}

func TestDisabledNeverDeclaredProperty(t *testing.T) {
	ids := []string{"timer", "todo", "openWebsite", "clock", "stopwatch"}
	reg := NewRegistry(testLogger())
	for _, id := range ids {
		if err := reg.RegisterBuiltin(newTestPlugin(id, "cap_"+id, nil)); err != nil {
			t.Fatal(err)
		}
	}
	agg := NewAggregator(reg, newMemPrefs(), testLogger())

	rapid.Check(t, func(t *rapid.T) {
		state := PluginState{}
		for _, id := range ids {
			if rapid.Bool().Draw(t, id) {
				state[id] = false
			}
		}
		names := declNames(agg.DeclarationsFor(state))
		for _, id := range ids {
			declared := false
			for _, n := range names {
				if n == "cap_"+id {
					declared = true
				}
			}
			if declared != state.Enabled(id) {
				t.Fatalf("plugin %s: declared=%v enabled=%v", id, declared, state.Enabled(id))
			}
		}
	})
}
