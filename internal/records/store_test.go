package records_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mediaferry/internal/records"
	"mediaferry/internal/testsupport"
)

func TestUpsertIfAbsentIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rec := records.NewRecord{
		Filename:    "IMG_0001.JPG",
		SourceID:    "AbCdEf",
		CreatedDate: time.Date(2023, 7, 4, 12, 0, 0, 0, time.UTC),
		LocalPath:   filepath.Join(cfg.Paths.DownloadDir, "IMG_0001.JPG"),
		Size:        2048,
	}
	inserted, err := store.UpsertIfAbsent(ctx, rec)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !inserted {
		t.Fatal("expected first upsert to insert")
	}

	rec.LocalPath = "/elsewhere/IMG_0001.JPG"
	inserted, err = store.UpsertIfAbsent(ctx, rec)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted {
		t.Fatal("expected second upsert to report inserted=false")
	}

	all, err := store.SelectWhere(ctx, nil)
	if err != nil {
		t.Fatalf("SelectWhere: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(all))
	}
	got := all[0]
	if got.LocalPath != filepath.Join(cfg.Paths.DownloadDir, "IMG_0001.JPG") {
		t.Fatalf("existing row must not be overwritten, got local path %q", got.LocalPath)
	}
	if got.Status != records.StatusDownloaded {
		t.Fatalf("expected downloaded status, got %q", got.Status)
	}
	if !got.CreatedDate.Equal(rec.CreatedDate) {
		t.Fatalf("unexpected created date %v", got.CreatedDate)
	}
	if got.CurrentSize != 2048 {
		t.Fatalf("expected current size 2048, got %d", got.CurrentSize)
	}
	if got.ReplicaConfirmed != records.FlagUnset || got.ArchiveConfirmed != records.FlagUnset {
		t.Fatalf("expected unset flags, got %+v", got)
	}
}

func TestUpsertFallsBackToFilenameForSourceID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.UpsertIfAbsent(ctx, records.NewRecord{Filename: "a.mov", LocalPath: "/tmp/a.mov"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec, err := store.GetBySourceID(ctx, "a.mov")
	if err != nil || rec == nil {
		t.Fatalf("expected record keyed by filename, got %v %v", rec, err)
	}
	if _, err := store.UpsertIfAbsent(ctx, records.NewRecord{LocalPath: "/tmp/x"}); err == nil {
		t.Fatal("expected error for missing filename")
	}
}

func TestSetFlagIsMonotonic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	rec := testsupport.NewRecord(t, store, cfg, "a.jpg", 10, time.Now())

	if ok, err := store.ConfirmReplica(ctx, rec.ID, "/replica/a.jpg"); err != nil || !ok {
		t.Fatalf("ConfirmReplica: %v %v", ok, err)
	}
	if ok, err := store.MarkReplicaPending(ctx, rec.ID, ""); err != nil || !ok {
		t.Fatalf("MarkReplicaPending: %v %v", ok, err)
	}
	got := testsupport.MustGet(t, store, rec.ID)
	if got.ReplicaConfirmed != records.FlagDone {
		t.Fatalf("pending must not overwrite done, got %s", got.ReplicaConfirmed)
	}
	if got.ReplicaPath != "/replica/a.jpg" {
		t.Fatalf("unexpected replica path %q", got.ReplicaPath)
	}

	if _, err := store.SetFlag(ctx, rec.ID, records.FlagReplicaConfirmed, records.FlagUnset); !errors.Is(err, records.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := store.SetFlag(ctx, rec.ID, records.Flag(99), records.FlagDone); !errors.Is(err, records.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for unknown flag, got %v", err)
	}
}

func TestSetFlagReportsMissingRow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ok, err := store.SetFlag(ctx, 4242, records.FlagArchiveConfirmed, records.FlagDone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected affected=false for missing row")
	}
	ok, err = store.MarkDeletedAtOrigin(ctx, 4242)
	if err != nil || ok {
		t.Fatalf("expected guarded setter to report missing row without error, got %v %v", ok, err)
	}
	ok, err = store.IncrementError(ctx, 4242, "boom")
	if err != nil || ok {
		t.Fatalf("expected IncrementError to report missing row, got %v %v", ok, err)
	}
}

func TestReadyForDeleteRequiresBothReplicas(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	rec := testsupport.NewRecord(t, store, cfg, "b.jpg", 10, time.Now())

	if _, err := store.ConfirmReplica(ctx, rec.ID, ""); err != nil {
		t.Fatalf("ConfirmReplica: %v", err)
	}
	ok, err := store.MarkReadyForDelete(ctx, rec.ID, "/pending/b.jpg")
	if !errors.Is(err, records.ErrPreconditionViolated) {
		t.Fatalf("expected ErrPreconditionViolated, got %v", err)
	}
	if ok {
		t.Fatal("expected no row to change")
	}
	got := testsupport.MustGet(t, store, rec.ID)
	if got.ReadyForDelete != records.FlagUnset || got.LocalPath != rec.LocalPath {
		t.Fatalf("record must be untouched, got %+v", got)
	}

	if _, err := store.MarkDeletedAtOrigin(ctx, rec.ID); !errors.Is(err, records.ErrPreconditionViolated) {
		t.Fatalf("expected deletion guard to fire, got %v", err)
	}

	if _, err := store.ConfirmArchive(ctx, rec.ID, "/nas/b.jpg"); err != nil {
		t.Fatalf("ConfirmArchive: %v", err)
	}
	ok, err = store.MarkReadyForDelete(ctx, rec.ID, "/pending/b.jpg")
	if err != nil || !ok {
		t.Fatalf("MarkReadyForDelete: %v %v", ok, err)
	}
	got = testsupport.MustGet(t, store, rec.ID)
	if got.ReadyForDelete != records.FlagDone || got.LocalPath != "/pending/b.jpg" {
		t.Fatalf("unexpected record after delete prep: %+v", got)
	}
}

func TestIncrementErrorAccumulatesAndSuccessClearsMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	rec := testsupport.NewRecord(t, store, cfg, "c.jpg", 10, time.Now())

	for i := 0; i < 3; i++ {
		if _, err := store.IncrementError(ctx, rec.ID, "copy failed"); err != nil {
			t.Fatalf("IncrementError: %v", err)
		}
	}
	got := testsupport.MustGet(t, store, rec.ID)
	if got.ErrorCount != 3 || got.LastError != "copy failed" {
		t.Fatalf("unexpected error bookkeeping: %d %q", got.ErrorCount, got.LastError)
	}

	if _, err := store.ConfirmArchive(ctx, rec.ID, "/nas/c.jpg"); err != nil {
		t.Fatalf("ConfirmArchive: %v", err)
	}
	got = testsupport.MustGet(t, store, rec.ID)
	if got.ErrorCount != 3 {
		t.Fatalf("error count must never be reset, got %d", got.ErrorCount)
	}
	if got.LastError != "" {
		t.Fatalf("expected stale error to be cleared, got %q", got.LastError)
	}
}

func TestMarkCompressedKeepsFirstInitialSize(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	rec := testsupport.NewRecord(t, store, cfg, "d.jpg", 1000, time.Now())
	if rec.InitialSize != 1000 || rec.CurrentSize != 1000 {
		t.Fatalf("insert should record the downloaded size, got initial=%d current=%d", rec.InitialSize, rec.CurrentSize)
	}

	if _, err := store.MarkCompressed(ctx, rec.ID, rec.LocalPath, 700, 400); err != nil {
		t.Fatalf("MarkCompressed: %v", err)
	}
	got := testsupport.MustGet(t, store, rec.ID)
	if got.InitialSize != 1000 {
		t.Fatalf("initial size is first-write-wins, got %d", got.InitialSize)
	}
	if got.CurrentSize != 400 {
		t.Fatalf("unexpected current size %d", got.CurrentSize)
	}
	if got.Compressed != records.FlagDone || got.CompressedAt.IsZero() {
		t.Fatalf("expected compressed flag and timestamp, got %+v", got)
	}
}

func TestAggregateCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	empty, err := store.AggregateCounts(ctx)
	if err != nil {
		t.Fatalf("AggregateCounts on empty store: %v", err)
	}
	if empty.Total != 0 || empty.BytesSaved != 0 {
		t.Fatalf("expected zero stats, got %+v", empty)
	}

	a := testsupport.NewRecord(t, store, cfg, "a.jpg", 100, time.Now())
	b := testsupport.NewRecord(t, store, cfg, "b.jpg", 100, time.Now())
	testsupport.NewRecord(t, store, cfg, "c.jpg", 100, time.Now())

	for _, id := range []int64{a.ID, b.ID} {
		if _, err := store.ConfirmReplica(ctx, id, ""); err != nil {
			t.Fatalf("ConfirmReplica: %v", err)
		}
		if _, err := store.ConfirmArchive(ctx, id, ""); err != nil {
			t.Fatalf("ConfirmArchive: %v", err)
		}
	}
	if _, err := store.MarkCompressed(ctx, a.ID, a.LocalPath, 100, 60); err != nil {
		t.Fatalf("MarkCompressed: %v", err)
	}
	if _, err := store.IncrementError(ctx, b.ID, "nope"); err != nil {
		t.Fatalf("IncrementError: %v", err)
	}

	stats, err := store.AggregateCounts(ctx)
	if err != nil {
		t.Fatalf("AggregateCounts: %v", err)
	}
	if stats.Total != 3 || stats.ReplicaConfirmed != 2 || stats.ArchiveConfirmed != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Compressed != 1 || stats.BytesSaved != 40 {
		t.Fatalf("unexpected compression stats %+v", stats)
	}
	if stats.WithErrors != 1 || stats.UpdatedLast24h != 3 {
		t.Fatalf("unexpected error/activity stats %+v", stats)
	}
}

func TestRunLogRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	id, err := store.StartRunLog(ctx, "run-1", "archive", false, started)
	if err != nil {
		t.Fatalf("StartRunLog: %v", err)
	}
	err = store.FinishRunLog(ctx, records.RunLogEntry{
		ID:          id,
		Status:      records.RunStatusFailed,
		CompletedAt: started.Add(30 * time.Second),
		Total:       6,
		Successful:  3,
		Failed:      1,
		Unchanged:   2,
		Error:       "copy failed",
	})
	if err != nil {
		t.Fatalf("FinishRunLog: %v", err)
	}

	entries, err := store.RecentRunLog(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRunLog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.RunID != "run-1" || entry.Stage != "archive" || entry.Status != records.RunStatusFailed {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Total != 6 || entry.Successful != 3 || entry.Failed != 1 || entry.Unchanged != 2 || entry.Error != "copy failed" {
		t.Fatalf("unexpected counts %+v", entry)
	}
	if entry.Duration() != 30*time.Second {
		t.Fatalf("unexpected duration %v", entry.Duration())
	}
}

func TestCheckHealthAndBackup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewRecord(t, store, cfg, "a.jpg", 10, time.Now())

	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health %+v", health)
	}
	if len(health.MissingColumns) != 0 || health.TotalRecords != 1 {
		t.Fatalf("unexpected health details %+v", health)
	}

	backupPath, err := store.Backup(ctx, filepath.Join(testsupport.BaseDir(cfg), "backups"))
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	copyStore, err := records.OpenPath(backupPath)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer copyStore.Close()
	stats, err := copyStore.AggregateCounts(ctx)
	if err != nil {
		t.Fatalf("AggregateCounts on backup: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("expected backup to contain one record, got %d", stats.Total)
	}
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.Close()

	_, err = store.SetFlag(context.Background(), 1, records.FlagArchiveConfirmed, records.FlagDone)
	if !errors.Is(err, records.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSchemaMismatchIsDetected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.Close()

	if err := setSchemaVersion(cfg.DatabasePath(), 99); err != nil {
		t.Fatalf("set schema version: %v", err)
	}
	if _, err := records.Open(cfg); !errors.Is(err, records.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
