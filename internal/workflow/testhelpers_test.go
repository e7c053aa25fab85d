package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediaferry/internal/archive"
	"mediaferry/internal/compression"
	"mediaferry/internal/config"
	"mediaferry/internal/deleteprep"
	"mediaferry/internal/ingest"
	"mediaferry/internal/notifications"
	"mediaferry/internal/purge"
	"mediaferry/internal/records"
	"mediaferry/internal/replica"
	"mediaferry/internal/services/icloudpd"
	"mediaferry/internal/services/transcode"
	"mediaferry/internal/stage"
	"mediaferry/internal/stageexec"
	"mediaferry/internal/testsupport"
	"mediaferry/internal/workflow"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	loads  []notifications.Payload
}

func (s *stubNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.loads = append(s.loads, payload)
	return nil
}

func (s *stubNotifier) count(event notifications.Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == event {
			n++
		}
	}
	return n
}

// fakeDownloader drops the queued files into the download directory with
// their capture time as modification time, like icloudpd does.
type fakeDownloader struct {
	dir   string
	queue map[string]time.Time
	calls int
}

func (f *fakeDownloader) Download(context.Context) error {
	f.calls++
	for name, captured := range f.queue {
		path := filepath.Join(f.dir, name)
		if err := os.WriteFile(path, make([]byte, 1000), 0o644); err != nil {
			return err
		}
		if err := os.Chtimes(path, captured, captured); err != nil {
			return err
		}
	}
	f.queue = nil
	return nil
}

type fakeRemover struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeRemover) DeleteRemote(_ context.Context, filename, _ string) (icloudpd.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, filename)
	return icloudpd.Deleted, nil
}

// ratioTranscoder writes an output whose size is ratio times the input.
type ratioTranscoder struct {
	ratio float64
	calls int
}

func (r *ratioTranscoder) Compress(_ context.Context, src, dst string, _ transcode.Quality) (transcode.Result, error) {
	r.calls++
	info, err := os.Stat(src)
	if err != nil {
		return transcode.Result{}, err
	}
	size := int64(float64(info.Size()) * r.ratio)
	if err := os.WriteFile(dst, make([]byte, size), 0o644); err != nil {
		return transcode.Result{}, err
	}
	return transcode.Result{Path: dst, Size: size}, nil
}

type harness struct {
	cfg        *config.Config
	store      *records.Store
	notifier   *stubNotifier
	downloader *fakeDownloader
	remover    *fakeRemover
	transcoder *ratioTranscoder
	manager    *workflow.Manager
}

// newHarness builds a manager over real stage executors with fake origin and
// transcoder collaborators. mutate adjusts the config before anything is built.
func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithRetry(2, 0))
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	h := &harness{
		cfg:        cfg,
		store:      store,
		notifier:   &stubNotifier{},
		downloader: &fakeDownloader{dir: cfg.Paths.DownloadDir},
		remover:    &fakeRemover{},
		transcoder: &ratioTranscoder{ratio: 0.4},
	}
	noSleep := func(context.Context, time.Duration) error { return nil }
	h.manager = workflow.NewManager(cfg, store, nil,
		workflow.WithNotifier(h.notifier),
		workflow.WithSleeper(noSleep),
		workflow.WithClock(func() time.Time { return fixedNow }),
	)
	set := workflow.StageSet{
		Download:      ingest.New(cfg, store, h.downloader, nil),
		Replica:       replica.New(cfg, nil, nil),
		Archive:       archive.New(cfg, nil),
		PrepareDelete: deleteprep.New(cfg, nil, nil),
		DeleteOrigin:  purge.New(cfg, h.remover, nil),
	}
	if cfg.Compression.Enabled {
		set.Compress = compression.New(cfg, h.transcoder, nil, compression.WithClock(func() time.Time { return fixedNow }))
	}
	h.manager.ConfigureStages(set)
	return h
}

func (h *harness) queue(name string, captured time.Time) {
	if h.downloader.queue == nil {
		h.downloader.queue = make(map[string]time.Time)
	}
	h.downloader.queue[name] = captured
}

func (h *harness) run(t *testing.T, opts workflow.RunOptions) workflow.PipelineResult {
	t.Helper()
	result, err := h.manager.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result
}

func (h *harness) record(t *testing.T, sourceID string) *records.Record {
	t.Helper()
	rec, err := h.store.GetBySourceID(context.Background(), sourceID)
	if err != nil {
		t.Fatalf("GetBySourceID(%s): %v", sourceID, err)
	}
	if rec == nil {
		t.Fatalf("record %s not found", sourceID)
	}
	return rec
}

// breakArchive replaces the archive directory with a regular file so every
// archive copy fails.
func breakArchive(t *testing.T, cfg *config.Config) {
	t.Helper()
	if err := os.RemoveAll(cfg.Paths.ArchiveDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Paths.ArchiveDir, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func batchFor(t *testing.T, result workflow.PipelineResult, id stage.ID) stageexec.BatchResult {
	t.Helper()
	for _, b := range result.Stages {
		if b.Stage == id {
			return b
		}
	}
	t.Fatalf("stage %s did not run; ran %d stages", id, len(result.Stages))
	return stageexec.BatchResult{}
}
