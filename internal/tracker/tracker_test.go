package tracker_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediaferry/internal/stage"
	"mediaferry/internal/tracker"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTrackerLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	tr := tracker.New(10)
	tr.SetClock(clock.Now)

	tr.StartRun("run-1", []stage.ID{stage.Replica, stage.Archive, stage.PrepareDelete}, false)
	tr.StartStep(stage.Replica)
	tr.UpdateStepProgress(stage.Replica, 1, 4)
	tr.AddFileTracking("/d/IMG_1.JPG", stage.Replica, "done")

	snap := tr.Status()
	if snap.Current != stage.Replica || snap.Steps[0].Percent != 25 {
		t.Fatalf("unexpected progress %+v", snap)
	}

	clock.advance(5 * time.Second)
	tr.UpdateStepProgress(stage.Replica, 4, 4)
	tr.CompleteStep(stage.Replica, true, "")
	tr.StartStep(stage.Archive)
	clock.advance(2 * time.Second)
	tr.CompleteStep(stage.Archive, false, "1 file failed")
	tr.CompleteWorkflow(false)

	snap = tr.Status()
	if snap.State != tracker.StateFailed {
		t.Fatalf("expected failed run, got %s", snap.State)
	}
	if snap.Steps[0].Duration != 5 || snap.Steps[0].State != tracker.StateCompleted {
		t.Fatalf("unexpected replica step %+v", snap.Steps[0])
	}
	if snap.Steps[1].State != tracker.StateFailed || snap.Steps[2].State != tracker.StateSkipped {
		t.Fatalf("unexpected step states %+v", snap.Steps)
	}
	if len(snap.Errors) != 1 || snap.Processed != 4 || snap.Duration != 7 {
		t.Fatalf("unexpected run totals %+v", snap)
	}
	want := 200.0 / 3
	if snap.Percent < want-0.01 || snap.Percent > want+0.01 {
		t.Fatalf("expected %.2f%% complete, got %.2f", want, snap.Percent)
	}
}

func TestFileTrackingIsBounded(t *testing.T) {
	tr := tracker.New(2)
	tr.StartRun("run-2", []stage.ID{stage.Archive}, false)
	for _, name := range []string{"a", "b", "c"} {
		tr.AddFileTracking(name, stage.Archive, "done")
	}
	files := tr.Status().Files
	if len(files) != 2 || files[0].Path != "b" {
		t.Fatalf("expected the newest two files, got %+v", files)
	}
}

func TestSaveWritesSnapshot(t *testing.T) {
	tr := tracker.New(0)
	if _, err := tr.Save(t.TempDir()); err == nil {
		t.Fatal("expected error without an active run")
	}

	tr.StartRun("run-3", []stage.ID{stage.Download}, true)
	dir := filepath.Join(t.TempDir(), "runs")
	path, err := tr.Save(dir)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if path != filepath.Join(dir, "run-3.json") {
		t.Fatalf("unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded tracker.Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if decoded.RunID != "run-3" || !decoded.DryRun || len(decoded.Steps) != 1 {
		t.Fatalf("unexpected snapshot %+v", decoded)
	}
}
