package store

import (
	"path/filepath"
	"testing"
)

func TestOpenMemoryMigrates(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if want := len(migrations); v != want {
		t.Errorf("schema version = %d, want %d", v, want)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stratum.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	m := testMemory()
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	db.Close()

	// Reopen: migrations must not rerun or lose data.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	got, err := db.PeekMemory(m.ID)
	if err != nil {
		t.Fatalf("PeekMemory after reopen: %v", err)
	}
	if got.Content != m.Content {
		t.Errorf("content = %q, want %q", got.Content, m.Content)
	}
}
