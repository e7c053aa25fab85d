package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediaferry/internal/archive"
	"mediaferry/internal/config"
	"mediaferry/internal/lock"
	"mediaferry/internal/notifications"
	"mediaferry/internal/records"
	"mediaferry/internal/stage"
	"mediaferry/internal/testsupport"
	"mediaferry/internal/workflow"
)

func TestNewFileFlowsThroughEveryStage(t *testing.T) {
	h := newHarness(t, nil)
	captured := time.Date(2021, 7, 4, 18, 0, 0, 0, time.UTC)
	h.queue("IMG_0001.JPG", captured)

	result := h.run(t, workflow.RunOptions{})
	if !result.Success || result.DryRun || result.StoppedAt != "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Stages) != len(stage.Order()) {
		t.Fatalf("expected every stage to run, got %d", len(result.Stages))
	}

	rec := h.record(t, "IMG_0001.JPG")
	for _, flag := range []records.Flag{
		records.FlagReplicaConfirmed,
		records.FlagArchiveConfirmed,
		records.FlagCompressed,
		records.FlagReadyForDelete,
		records.FlagDeletedAtOrigin,
	} {
		if rec.State(flag) != records.FlagDone {
			t.Fatalf("flag %s = %q, want done", flag, rec.State(flag))
		}
	}
	if rec.InitialSize != 1000 || rec.CurrentSize != 400 {
		t.Fatalf("unexpected sizes initial=%d current=%d", rec.InitialSize, rec.CurrentSize)
	}
	if testsupport.Exists(rec.LocalPath) {
		t.Fatalf("local copy %s should be removed after origin deletion", rec.LocalPath)
	}
	if got := testsupport.FileSize(t, filepath.Join(h.cfg.Paths.ReplicaDir, "IMG_0001.JPG")); got != 1000 {
		t.Fatalf("replica copy size %d, want 1000", got)
	}
	if got := testsupport.FileSize(t, filepath.Join(h.cfg.Paths.ArchiveDir, "2021", "07", "IMG_0001.JPG")); got != 1000 {
		t.Fatalf("archive copy size %d, want 1000", got)
	}
	if len(h.remover.deleted) != 1 || h.remover.deleted[0] != "IMG_0001.JPG" {
		t.Fatalf("unexpected origin deletions %v", h.remover.deleted)
	}

	if h.notifier.count(notifications.EventRunStarted) != 1 || h.notifier.count(notifications.EventRunCompleted) != 1 {
		t.Fatalf("unexpected notifications %v", h.notifier.events)
	}
	if h.notifier.count(notifications.EventStageCompleted) != len(stage.Order()) {
		t.Fatalf("expected a stage notification per stage, got %v", h.notifier.events)
	}
	if h.notifier.count(notifications.EventRunError) != 0 {
		t.Fatal("no run error expected")
	}

	entries, err := h.store.RecentRunLog(context.Background(), 20)
	if err != nil {
		t.Fatalf("RecentRunLog: %v", err)
	}
	if len(entries) != len(stage.Order()) {
		t.Fatalf("expected %d run log rows, got %d", len(stage.Order()), len(entries))
	}
	for _, entry := range entries {
		if entry.RunID != result.RunID || entry.Status != records.RunStatusCompleted {
			t.Fatalf("unexpected run log entry %+v", entry)
		}
	}
}

func TestFailedArchiveBlocksDeletion(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Workflow.StopOnFailure = false })
	breakArchive(t, h.cfg)
	h.queue("IMG_0002.JPG", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	result := h.run(t, workflow.RunOptions{})
	if result.Success {
		t.Fatal("run with a failed archive must not report success")
	}
	if result.StoppedAt != "" {
		t.Fatalf("run should continue without stop_on_failure, stopped at %s", result.StoppedAt)
	}
	if b := batchFor(t, result, stage.Archive); b.Failed != 1 {
		t.Fatalf("archive batch %+v", b)
	}
	if b := batchFor(t, result, stage.PrepareDelete); b.Total != 0 {
		t.Fatalf("prepare_delete should select nothing, got %+v", b)
	}

	rec := h.record(t, "IMG_0002.JPG")
	if rec.ReplicaConfirmed != records.FlagDone {
		t.Fatalf("replica should still complete, got %q", rec.ReplicaConfirmed)
	}
	if rec.ArchiveConfirmed == records.FlagDone || rec.ReadyForDelete == records.FlagDone || rec.DeletedAtOrigin == records.FlagDone {
		t.Fatalf("deletion must be blocked: %+v", rec)
	}
	if rec.ErrorCount != 1 || rec.LastError == "" {
		t.Fatalf("expected the archive failure on the record, got count=%d err=%q", rec.ErrorCount, rec.LastError)
	}
	if !testsupport.Exists(rec.LocalPath) {
		t.Fatal("local file must survive a failed archive")
	}
	if len(h.remover.deleted) != 0 {
		t.Fatalf("origin must not be touched, got %v", h.remover.deleted)
	}
	if h.notifier.count(notifications.EventRunError) != 1 {
		t.Fatalf("expected one run error notification, got %v", h.notifier.events)
	}
}

func TestStopOnFailureEndsRunAtFailedStage(t *testing.T) {
	h := newHarness(t, nil)
	breakArchive(t, h.cfg)
	h.queue("IMG_0003.JPG", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	result := h.run(t, workflow.RunOptions{})
	if result.Success || result.StoppedAt != stage.Archive {
		t.Fatalf("expected stop at archive, got %+v", result)
	}
	if len(result.Stages) != 3 {
		t.Fatalf("expected download, replica and archive only, got %d stages", len(result.Stages))
	}
	if h.transcoder.calls != 0 {
		t.Fatal("compression must not run after a stopped stage")
	}

	entries, err := h.store.RecentRunLog(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRunLog: %v", err)
	}
	if len(entries) != 3 || entries[0].Stage != string(stage.Archive) || entries[0].Status != records.RunStatusFailed {
		t.Fatalf("unexpected run log %+v", entries)
	}
}

func TestMissingSourceFileIsRecordedAndBatchContinues(t *testing.T) {
	h := newHarness(t, nil)
	created := time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC)
	gone := testsupport.InsertRecord(t, h.store, "gone.jpg", filepath.Join(h.cfg.Paths.DownloadDir, "gone.jpg"), created)
	present := testsupport.NewRecord(t, h.store, h.cfg, "present.jpg", 500, created)

	result := h.run(t, workflow.RunOptions{Stages: []stage.ID{stage.Replica}})
	b := batchFor(t, result, stage.Replica)
	if b.Total != 2 || b.Failed != 1 || b.Successful != 1 {
		t.Fatalf("unexpected replica batch %+v", b)
	}
	if result.Success {
		t.Fatal("missing file must fail the run")
	}

	got := testsupport.MustGet(t, h.store, gone.ID)
	if got.ErrorCount != 1 {
		t.Fatalf("missing file should be attempted once, error_count=%d", got.ErrorCount)
	}
	if !strings.Contains(got.LastError, "local file missing") {
		t.Fatalf("unexpected last error %q", got.LastError)
	}
	if got.ReplicaConfirmed != records.FlagUnset || got.ArchiveConfirmed != records.FlagUnset {
		t.Fatalf("flags must be unchanged: %+v", got)
	}
	if ok := testsupport.MustGet(t, h.store, present.ID); ok.ReplicaConfirmed != records.FlagDone {
		t.Fatalf("present file should be replicated, got %q", ok.ReplicaConfirmed)
	}
}

func TestPartialRunThenResume(t *testing.T) {
	h := newHarness(t, nil)
	h.queue("IMG_0004.JPG", time.Date(2020, 2, 2, 0, 0, 0, 0, time.UTC))

	first := h.run(t, workflow.RunOptions{Stages: []stage.ID{stage.Archive, stage.Download}})
	if len(first.Stages) != 2 || first.Stages[0].Stage != stage.Download || first.Stages[1].Stage != stage.Archive {
		t.Fatalf("stages must run in pipeline order, got %+v", first.Stages)
	}
	rec := h.record(t, "IMG_0004.JPG")
	if rec.ArchiveConfirmed != records.FlagDone || rec.ReplicaConfirmed != records.FlagUnset {
		t.Fatalf("unexpected flags after partial run: %+v", rec)
	}

	second := h.run(t, workflow.RunOptions{})
	if !second.Success {
		t.Fatalf("resume failed: %+v", second)
	}
	if b := batchFor(t, second, stage.Archive); b.Total != 0 {
		t.Fatalf("archive must not repeat completed work, got %+v", b)
	}
	if b := batchFor(t, second, stage.Replica); b.Successful != 1 {
		t.Fatalf("replica should pick up the remaining work, got %+v", b)
	}
	rec = h.record(t, "IMG_0004.JPG")
	if rec.DeletedAtOrigin != records.FlagDone {
		t.Fatalf("resumed run should finish the record: %+v", rec)
	}
}

func TestCompletedRecordsStayDone(t *testing.T) {
	h := newHarness(t, nil)
	h.queue("IMG_0005.JPG", time.Date(2019, 9, 9, 0, 0, 0, 0, time.UTC))
	h.run(t, workflow.RunOptions{})
	before := h.record(t, "IMG_0005.JPG")

	again := h.run(t, workflow.RunOptions{})
	if !again.Success || again.Processed() != 0 {
		t.Fatalf("second run should find nothing to do, got %+v", again)
	}
	after := h.record(t, "IMG_0005.JPG")
	if after.ReplicaConfirmed != before.ReplicaConfirmed || after.ArchiveConfirmed != before.ArchiveConfirmed ||
		after.Compressed != before.Compressed || after.ReadyForDelete != before.ReadyForDelete ||
		after.DeletedAtOrigin != before.DeletedAtOrigin {
		t.Fatalf("flags changed between runs: before %+v after %+v", before, after)
	}
	if len(h.remover.deleted) != 1 {
		t.Fatalf("origin deletion must not repeat, got %v", h.remover.deleted)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	h := newHarness(t, nil)
	created := time.Date(2022, 6, 6, 0, 0, 0, 0, time.UTC)
	rec := testsupport.NewRecord(t, h.store, h.cfg, "IMG_0006.JPG", 800, created)
	testsupport.WriteFile(t, filepath.Join(h.cfg.Paths.DownloadDir, "IMG_0007.JPG"), 10)
	h.queue("IMG_0008.JPG", created)

	result := h.run(t, workflow.RunOptions{DryRun: true})
	if !result.DryRun || !result.Success {
		t.Fatalf("unexpected dry run result %+v", result)
	}
	if b := batchFor(t, result, stage.Download); b.Total != 1 {
		t.Fatalf("dry run should report one unregistered file, got %+v", b)
	}
	if b := batchFor(t, result, stage.Replica); b.Total != 1 || b.Successful != 0 {
		t.Fatalf("dry run should only count eligible records, got %+v", b)
	}
	if h.downloader.calls != 0 {
		t.Fatal("dry run must not download")
	}

	got := testsupport.MustGet(t, h.store, rec.ID)
	if got.ReplicaConfirmed != records.FlagUnset || got.ArchiveConfirmed != records.FlagUnset || !got.LastUpdated.Equal(rec.LastUpdated) {
		t.Fatalf("dry run modified the record: %+v", got)
	}
	if n, err := h.store.CountWhere(context.Background(), nil); err != nil || n != 1 {
		t.Fatalf("dry run must not register files, count=%d err=%v", n, err)
	}
	entries, err := h.store.RecentRunLog(context.Background(), 10)
	if err != nil || len(entries) != 0 {
		t.Fatalf("dry run must not write run log rows, got %d (%v)", len(entries), err)
	}
	if testsupport.Exists(filepath.Join(h.cfg.Paths.ReplicaDir, "IMG_0006.JPG")) {
		t.Fatal("dry run must not copy files")
	}
	if len(h.notifier.events) != 0 {
		t.Fatalf("dry run must not notify, got %v", h.notifier.events)
	}
}

// healthCounter counts HealthCheck calls on the wrapped executor.
type healthCounter struct {
	stage.Executor
	checks int
}

func (c *healthCounter) HealthCheck(ctx context.Context) stage.Health {
	c.checks++
	return c.Executor.HealthCheck(ctx)
}

func TestDryRunSkipsStageHealthChecks(t *testing.T) {
	h := newHarness(t, nil)
	counter := &healthCounter{Executor: archive.New(h.cfg, nil)}
	h.manager.ConfigureStages(workflow.StageSet{Archive: counter})

	h.run(t, workflow.RunOptions{DryRun: true})
	if counter.checks != 0 {
		t.Fatalf("dry run ran %d stage health checks", counter.checks)
	}
	entries, err := os.ReadDir(h.cfg.Paths.ArchiveDir)
	if err != nil {
		t.Fatalf("read archive dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("dry run wrote into the archive: %v", entries)
	}

	h.run(t, workflow.RunOptions{})
	if counter.checks != 1 {
		t.Fatalf("real run should check stage health once, got %d", counter.checks)
	}
}

func TestCompressionThreshold(t *testing.T) {
	tests := []struct {
		name       string
		ratio      float64
		wantFlag   records.FlagState
		wantSize   int64
		wantResult func(ok, unchanged int) bool
	}{
		{"three percent is kept", 0.97, records.FlagUnset, 1000, func(ok, unchanged int) bool { return ok == 0 && unchanged == 1 }},
		{"twenty percent is applied", 0.80, records.FlagDone, 800, func(ok, unchanged int) bool { return ok == 1 && unchanged == 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.transcoder.ratio = tc.ratio
			rec := testsupport.NewRecord(t, h.store, h.cfg, "IMG_0009.JPG", 1000, time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC))
			ctx := context.Background()
			if _, err := h.store.ConfirmReplica(ctx, rec.ID, "r"); err != nil {
				t.Fatal(err)
			}
			if _, err := h.store.ConfirmArchive(ctx, rec.ID, "a"); err != nil {
				t.Fatal(err)
			}

			result := h.run(t, workflow.RunOptions{Stages: []stage.ID{stage.Compress}})
			b := batchFor(t, result, stage.Compress)
			if !tc.wantResult(b.Successful, b.Unchanged) || b.Failed != 0 || b.Skipped != 0 {
				t.Fatalf("unexpected batch %+v", b)
			}
			got := testsupport.MustGet(t, h.store, rec.ID)
			if got.Compressed != tc.wantFlag {
				t.Fatalf("compressed = %q, want %q", got.Compressed, tc.wantFlag)
			}
			if size := testsupport.FileSize(t, rec.LocalPath); size != tc.wantSize {
				t.Fatalf("file size %d, want %d", size, tc.wantSize)
			}
		})
	}
}

func TestFileKeptBelowThresholdIsNotCompressedAfterDeletion(t *testing.T) {
	h := newHarness(t, nil)
	h.transcoder.ratio = 0.97
	captured := time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC)

	h.queue("IMG_0001.JPG", captured)
	first := h.run(t, workflow.RunOptions{})
	if !first.Success {
		t.Fatalf("first run failed: %+v", first)
	}
	kept := h.record(t, "IMG_0001.JPG")
	if kept.Compressed != records.FlagUnset || kept.DeletedAtOrigin != records.FlagDone {
		t.Fatalf("expected uncompressed record deleted at origin, got %+v", kept)
	}

	h.queue("IMG_0002.JPG", captured)
	second := h.run(t, workflow.RunOptions{})
	if !second.Success {
		t.Fatalf("second run failed: %+v", second)
	}
	b := batchFor(t, second, stage.Compress)
	if b.Total != 1 || b.Failed != 0 || b.Unchanged != 1 {
		t.Fatalf("only the new file should reach the compressor, got %+v", b)
	}
	if got := h.record(t, "IMG_0001.JPG"); got.ErrorCount != 0 {
		t.Fatalf("deleted record must not accumulate errors, got %d (%s)", got.ErrorCount, got.LastError)
	}
	if got := h.record(t, "IMG_0002.JPG"); got.DeletedAtOrigin != records.FlagDone {
		t.Fatalf("second file should complete the pipeline, got %+v", got)
	}
}

func TestRunRefusesWhenLockHeld(t *testing.T) {
	h := newHarness(t, nil)
	held, err := lock.Acquire(h.cfg.LockPath())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	_, err = h.manager.Run(context.Background(), workflow.RunOptions{})
	if !errors.Is(err, lock.ErrHeld) {
		t.Fatalf("expected lock.ErrHeld, got %v", err)
	}
	if _, err := h.manager.Run(context.Background(), workflow.RunOptions{DryRun: true}); err != nil {
		t.Fatalf("dry run should not need the lock: %v", err)
	}
}

func TestCancelledRunIsInterrupted(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.manager.Run(ctx, workflow.RunOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !result.Interrupted || result.Success {
		t.Fatalf("unexpected result %+v", result)
	}
	if h.notifier.count(notifications.EventRunCompleted) != 0 || h.notifier.count(notifications.EventRunError) != 0 {
		t.Fatalf("interrupted run should not report completion or errors, got %v", h.notifier.events)
	}
}

func TestUnconfiguredStageIsSkipped(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Compression.Enabled = false })

	_, err := h.manager.Run(context.Background(), workflow.RunOptions{Stages: []stage.ID{stage.Compress}})
	if err == nil {
		t.Fatal("expected an error when no requested stage is configured")
	}

	result := h.run(t, workflow.RunOptions{Stages: []stage.ID{stage.Archive, stage.Compress}})
	if len(result.Stages) != 1 || len(result.Skipped) != 1 || result.Skipped[0] != stage.Compress {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := h.manager.Registered(); len(got) != len(stage.Order())-1 {
		t.Fatalf("unexpected registered stages %v", got)
	}
}

func TestRunWritesSnapshotsMetricsAndBackup(t *testing.T) {
	metricsPath := ""
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Workflow.Snapshots = true
		cfg.Workflow.BackupBeforeRun = true
		metricsPath = filepath.Join(testsupport.BaseDir(cfg), "mediaferry.prom")
		cfg.Metrics.TextfilePath = metricsPath
	})
	h.queue("IMG_0010.JPG", time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC))

	result := h.run(t, workflow.RunOptions{})
	if !result.Success {
		t.Fatalf("unexpected result %+v", result)
	}

	snapshot := filepath.Join(h.cfg.Paths.LogDir, "runs", result.RunID+".json")
	data, err := os.ReadFile(snapshot)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !strings.Contains(string(data), `"state": "completed"`) || !strings.Contains(string(data), "IMG_0010.JPG") {
		t.Fatalf("unexpected snapshot %s", data)
	}

	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{"mediaferry_last_run_success 1", `mediaferry_stage_files{outcome="successful",stage="archive"} 1`} {
		if !strings.Contains(string(prom), want) {
			t.Fatalf("metrics missing %q:\n%s", want, prom)
		}
	}

	backups, err := os.ReadDir(filepath.Join(h.cfg.Paths.StateDir, "backups"))
	if err != nil || len(backups) != 1 {
		t.Fatalf("expected one backup, got %d (%v)", len(backups), err)
	}

	status := h.manager.Status(context.Background())
	if status.Counts.DeletedAtOrigin != 1 || status.LastRun == nil || status.LastRun.RunID != result.RunID {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Current == nil || status.Current.RunID != result.RunID {
		t.Fatalf("status should expose the last tracked run, got %+v", status.Current)
	}
}
