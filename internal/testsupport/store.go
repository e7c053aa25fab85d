package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediaferry/internal/config"
	"mediaferry/internal/records"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord writes a file of size bytes into the download directory and
// inserts a matching record. It returns the stored record.
func NewRecord(t testing.TB, store *records.Store, cfg *config.Config, filename string, size int64, created time.Time) *records.Record {
	t.Helper()

	path := filepath.Join(cfg.Paths.DownloadDir, filename)
	WriteFile(t, path, size)
	return InsertRecord(t, store, filename, path, created)
}

// InsertRecord inserts a record for path without touching the filesystem.
func InsertRecord(t testing.TB, store *records.Store, filename, path string, created time.Time) *records.Record {
	t.Helper()

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	ctx := context.Background()
	inserted, err := store.UpsertIfAbsent(ctx, records.NewRecord{
		Filename:    filename,
		SourceID:    filename,
		CreatedDate: created,
		LocalPath:   path,
		Size:        size,
	})
	if err != nil {
		t.Fatalf("UpsertIfAbsent: %v", err)
	}
	if !inserted {
		t.Fatalf("expected %s to be inserted", filename)
	}
	rec, err := store.GetBySourceID(ctx, filename)
	if err != nil || rec == nil {
		t.Fatalf("GetBySourceID(%s): %v", filename, err)
	}
	return rec
}

// MustGet reloads a record and fails the test when it is missing.
func MustGet(t testing.TB, store *records.Store, id int64) *records.Record {
	t.Helper()

	rec, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d): %v", id, err)
	}
	if rec == nil {
		t.Fatalf("record %d not found", id)
	}
	return rec
}
