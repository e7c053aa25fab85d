package replica_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mediaferry/internal/replica"
	"mediaferry/internal/stage"
	"mediaferry/internal/testsupport"
)

type fakeConfirmer struct {
	synced  []string
	err     error
	scans   int
	pingErr error
}

func (f *fakeConfirmer) FullySynced(context.Context, string) ([]string, error) {
	return f.synced, f.err
}

func (f *fakeConfirmer) Scan(context.Context, string) error {
	f.scans++
	return nil
}

func (f *fakeConfirmer) Ping(context.Context) error { return f.pingErr }

var created = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func TestExecuteWithoutConfirmerIsDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecord(t, store, cfg, "IMG_1.JPG", 64, created)

	exec := replica.New(cfg, nil, nil)
	if err := exec.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	outcome, err := exec.Execute(context.Background(), rec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := filepath.Join(cfg.Paths.ReplicaDir, "IMG_1.JPG")
	if outcome.Status != stage.StatusDone || outcome.Path != want {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if testsupport.FileSize(t, want) != 64 {
		t.Fatal("replica copy has wrong size")
	}
}

func TestExecutePendingUntilSynced(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Replica.TriggerScan = true
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecord(t, store, cfg, "IMG_2.JPG", 32, created)

	confirmer := &fakeConfirmer{}
	exec := replica.New(cfg, confirmer, nil)
	ctx := context.Background()
	if err := exec.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	outcome, err := exec.Execute(ctx, rec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != stage.StatusPending {
		t.Fatalf("expected pending, got %v", outcome.Status)
	}
	if err := exec.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if confirmer.scans != 1 {
		t.Fatalf("expected a rescan after copying, got %d", confirmer.scans)
	}

	confirmer.synced = []string{"2023/IMG_2.JPG"}
	if err := exec.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	outcome, err = exec.Execute(ctx, rec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != stage.StatusDone {
		t.Fatalf("expected done once synced, got %v", outcome.Status)
	}
	if err := exec.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if confirmer.scans != 1 {
		t.Fatalf("no rescan expected when nothing was copied, got %d", confirmer.scans)
	}
}

func TestPrepareToleratesUnreachablePeer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecord(t, store, cfg, "IMG_3.JPG", 8, created)

	exec := replica.New(cfg, &fakeConfirmer{err: errors.New("connection refused")}, nil)
	if err := exec.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare should tolerate peer errors: %v", err)
	}
	outcome, err := exec.Execute(context.Background(), rec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != stage.StatusPending {
		t.Fatalf("expected pending, got %v", outcome.Status)
	}
}

func TestExecuteMissingLocalFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.InsertRecord(t, store, "gone.JPG", filepath.Join(cfg.Paths.DownloadDir, "gone.JPG"), created)

	_, err := replica.New(cfg, nil, nil).Execute(context.Background(), rec)
	if !errors.Is(err, stage.ErrMissingLocalFile) {
		t.Fatalf("expected ErrMissingLocalFile, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if h := replica.New(cfg, &fakeConfirmer{}, nil).HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected ready, got %+v", h)
	}
	if h := replica.New(cfg, &fakeConfirmer{pingErr: errors.New("down")}, nil).HealthCheck(context.Background()); h.Ready {
		t.Fatal("expected unreachable peer to be unhealthy")
	}
}

