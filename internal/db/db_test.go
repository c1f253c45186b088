package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	database, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	version, err := Version(context.Background(), database.DB, "sqlite")
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Fatalf("schema version = %d, want 2", version)
	}

	var fk int
	if err := database.Get(&fk, "PRAGMA foreign_keys"); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpenFileReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "habits.db")

	first, err := Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	first.Close()

	// Reopen: migrations are already applied and must be a no-op.
	second, err := Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
}

func TestMigrateDown(t *testing.T) {
	database, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := MigrateDown(database.DB, "sqlite"); err != nil {
		t.Fatal(err)
	}
	version, err := Version(context.Background(), database.DB, "sqlite")
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Fatalf("schema version after down = %d, want 1", version)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if err := RunMigrations(nil, "mysql"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
