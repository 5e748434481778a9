// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The store package is interface driven. Store composes four narrower
// interfaces so consumers can depend on only what they use:
//
//   - PreferenceStore: per-plugin enabled flags
//   - InstallLog: audit trail of installation attempts
//   - TodoStore: todo list snapshots written by the todo plugin
//   - TimerStore: countdowns started by the timer plugin
//
// SQLiteStore implements all of them in a single struct.
//
// # SQLite Configuration
//
// Two database/sql drivers are supported:
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//
// File databases run in WAL mode. The path ":memory:" opens a private
// in-memory database pinned to a single connection.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicate: an entity with the same ID was already stored
//
// A missing plugin preference is not an error: PluginEnabled reports
// found=false and callers apply the enabled-by-default rule.
//
// # Testing
//
// Use NewMockStore() for unit tests. Setting MockStore.Err makes every
// method fail, which is how callers exercise store outages.
//
// Use NewSQLiteStore(":memory:") for integration tests with real SQLite.
package store
