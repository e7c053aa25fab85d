package workdir_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediaferry/internal/workdir"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", filepath.Join(t.TempDir(), "missing")} {
		result := workdir.CleanStale(context.Background(), dir, time.Hour, time.Now(), nil)
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Fatalf("expected empty result for %q, got %+v", dir, result)
		}
	}
}

func TestCleanStaleRemovesOldEntries(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	oldFile := filepath.Join(dir, "12-IMG_0001.JPG")
	oldDir := filepath.Join(dir, "13-drapto")
	recent := filepath.Join(dir, "14-IMG_0002.JPG")
	if err := os.WriteFile(oldFile, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(oldDir, "segments"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(recent, []byte("in progress"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{oldFile, oldDir} {
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}

	result := workdir.CleanStale(context.Background(), dir, 24*time.Hour, now, nil)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", result.Removed)
	}
	for _, p := range []string{oldFile, oldDir} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s should have been removed", p)
		}
	}
	if _, err := os.Stat(recent); err != nil {
		t.Fatalf("recent entry should remain: %v", err)
	}
}

func TestUsage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b", "c"), make([]byte, 50), 0o644); err != nil {
		t.Fatal(err)
	}

	count, size, err := workdir.Usage(dir)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if count != 2 || size != 150 {
		t.Fatalf("Usage = %d entries, %d bytes; want 2, 150", count, size)
	}
}
