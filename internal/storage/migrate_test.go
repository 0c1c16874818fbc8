package storage

import (
	"path/filepath"
	"testing"
)

func TestMigrationManager_UpDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migration-test.db")

	mgr, err := NewMigrationManager(dbPath)
	if err != nil {
		t.Fatalf("Failed to create migration manager: %v", err)
	}
	defer mgr.Close()

	version, _, err := mgr.Version()
	if err != nil {
		t.Fatalf("Failed to get migration version: %v", err)
	}
	if version != 0 {
		t.Errorf("Expected version 0 before migrating, got %d", version)
	}

	if err := mgr.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	// Running again is a no-op.
	if err := mgr.Up(); err != nil {
		t.Fatalf("Second Up failed: %v", err)
	}

	version, dirty, err := mgr.Version()
	if err != nil {
		t.Fatalf("Failed to get migration version: %v", err)
	}
	if dirty {
		t.Error("Database is in dirty state after migrations")
	}
	if version != 2 {
		t.Errorf("Expected migration version 2, got %d", version)
	}

	if err := mgr.Down(); err != nil {
		t.Fatalf("Failed to roll back: %v", err)
	}
	version, _, err = mgr.Version()
	if err != nil {
		t.Fatalf("Failed to get migration version: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected version 1 after Down, got %d", version)
	}
}

func TestDatabaseURL(t *testing.T) {
	if got := databaseURL("/tmp/a.db"); got != "sqlite:///tmp/a.db" {
		t.Errorf("databaseURL = %q", got)
	}
	if got := databaseURL("rel/a.db"); got != "sqlite://rel/a.db" {
		t.Errorf("databaseURL = %q", got)
	}
}
