// ABOUTME: Tests for SQLite store construction and driver selection
// ABOUTME: Covers file creation, in-memory databases, and persistence across reopen

package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SetPluginEnabled(ctx, "todo", false); err != nil {
		t.Fatalf("SetPluginEnabled failed: %v", err)
	}
	enabled, found, err := store.PluginEnabled(ctx, "todo")
	if err != nil {
		t.Fatalf("PluginEnabled failed: %v", err)
	}
	if !found || enabled {
		t.Errorf("expected stored disabled flag, got enabled=%v found=%v", enabled, found)
	}
}

func TestNewSQLiteStore_UnknownDriver(t *testing.T) {
	if _, err := NewSQLiteStoreWithDriver("postgres", ":memory:"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestNewSQLiteStore_CgoDriver(t *testing.T) {
	store, err := NewSQLiteStoreWithDriver(DriverCgo, filepath.Join(t.TempDir(), "cgo.db"))
	if err != nil {
		if strings.Contains(err.Error(), "CGO_ENABLED") || strings.Contains(err.Error(), "cgo") {
			t.Skipf("cgo driver unavailable: %v", err)
		}
		t.Fatalf("NewSQLiteStoreWithDriver failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SetPluginEnabled(ctx, "clock", true); err != nil {
		t.Fatalf("SetPluginEnabled failed: %v", err)
	}
	enabled, found, err := store.PluginEnabled(ctx, "clock")
	if err != nil {
		t.Fatalf("PluginEnabled failed: %v", err)
	}
	if !found || !enabled {
		t.Errorf("expected stored enabled flag, got enabled=%v found=%v", enabled, found)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.SetPluginEnabled(ctx, "timer", false); err != nil {
		t.Fatalf("SetPluginEnabled failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	enabled, found, err := reopened.PluginEnabled(ctx, "timer")
	if err != nil {
		t.Fatalf("PluginEnabled failed: %v", err)
	}
	if !found || enabled {
		t.Errorf("preference lost across reopen: enabled=%v found=%v", enabled, found)
	}
}

// newTestStore creates a SQLite store in a temp directory for testing.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
