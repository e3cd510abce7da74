package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "f1.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DiskUsageBytes(f1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("single file: got %d bytes, want 5", got)
	}

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = DiskUsageBytes(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Errorf("directory: got %d bytes, want 7", got)
	}

	got, err = DiskUsageBytes(filepath.Join(dir, "missing"), "")
	if err != nil || got != 0 {
		t.Errorf("missing: got %d, %v", got, err)
	}
}

func TestDatabaseSizeBytes(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "documents.db")
	if err := os.WriteFile(db, make([]byte, 10), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", make([]byte, 4), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DatabaseSizeBytes(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 14 {
		t.Errorf("got %d, want 14", got)
	}
	if got, _ := DatabaseSizeBytes(":memory:"); got != 0 {
		t.Errorf(":memory: size = %d", got)
	}
}
