package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPendingFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_teams.up.sql", "001_init.up.sql", "001_init.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "003_dir.up.sql"), 0o700); err != nil {
		t.Fatal(err)
	}

	files, err := pendingFiles(dir)
	if err != nil {
		t.Fatalf("pendingFiles: %v", err)
	}
	want := []string{"001_init.up.sql", "002_teams.up.sql"}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestPendingFilesMissingDir(t *testing.T) {
	if _, err := pendingFiles(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestMigrationsDirectoryParses(t *testing.T) {
	files, err := pendingFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("pendingFiles: %v", err)
	}
	if len(files) == 0 || files[0] != "001_init.up.sql" {
		t.Errorf("expected 001_init.up.sql first, got %v", files)
	}
}
