// Package builtins provides the built-in plugins every gateway ships with.
//
// # Overview
//
// Built-in plugins are registered at startup, in a fixed order, into the
// protected part of the plugin catalog. They can be disabled by the operator
// but never unregistered.
//
// # Plugins
//
//   - timer (start_timer): countdown of 1 to 3600 seconds, persisted
//   - todo (manage_todo): replaces the todo list with a JSON snapshot
//   - openWebsite (open_website): validates a URL for the client to open
//   - clock (get_current_time): current time in 12h or 24h format
//   - stopwatch (stopwatch): start, stop, lap, and reset, keyed by label
//
// The timer and todo plugins carry guidance lines for the model's system
// instruction, including the notice used while they are disabled.
//
// # Usage
//
//	reg := plugins.NewRegistry(logger)
//	if err := builtins.Register(reg, builtins.Deps{Todos: s, Timers: s}); err != nil {
//		return err
//	}
//
// Handlers return a short JSON result. Invalid arguments produce an error,
// which the dispatcher logs and absorbs.
package builtins
