package storage

import (
	"testing"
)

func TestOpenAndMigrate(t *testing.T) {
	db, err := OpenAndMigrate(t.TempDir())
	if err != nil {
		t.Fatalf("OpenAndMigrate failed: %v", err)
	}
	defer db.Close()

	migrator := NewMigrator(db.DB)
	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}

	// All three core tables must exist.
	for _, table := range []string{"cache_entries", "offline_entries", "pending_writes"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	db, err := OpenAndMigrate(dir)
	if err != nil {
		t.Fatalf("first migrate failed: %v", err)
	}
	db.Close()

	// Reopening runs Up again over an already-migrated schema.
	db, err = OpenAndMigrate(dir)
	if err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	defer db.Close()

	migrator := NewMigrator(db.DB)
	applied, err := migrator.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations failed: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Errorf("applied %d migrations, want %d", len(applied), len(migrations))
	}
}

func TestChecksumMismatchDetected(t *testing.T) {
	db, err := OpenAndMigrate(t.TempDir())
	if err != nil {
		t.Fatalf("OpenAndMigrate failed: %v", err)
	}
	defer db.Close()

	// Corrupt a recorded checksum and re-run.
	bogus := checksum("something else entirely")
	if _, err := db.Exec("UPDATE schema_migrations SET checksum=? WHERE version=1", bogus); err != nil {
		t.Fatalf("corrupt checksum: %v", err)
	}

	migrator := NewMigrator(db.DB)
	if err := migrator.Up(); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}
