package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mediaferry/internal/config"
	"mediaferry/internal/logging"
	"mediaferry/internal/metrics"
	"mediaferry/internal/notifications"
	"mediaferry/internal/records"
	"mediaferry/internal/retry"
	"mediaferry/internal/stage"
	"mediaferry/internal/stageexec"
	"mediaferry/internal/tracker"
)

const trackedFilesPerRun = 500

// Manager runs the pipeline stages in order against the record store.
type Manager struct {
	cfg      *config.Config
	store    *records.Store
	logger   *slog.Logger
	notifier notifications.Service
	recorder *metrics.Recorder
	sleep    retry.Sleeper
	now      func() time.Time

	steps map[stage.ID]pipelineStep

	mu      sync.RWMutex
	tracker *tracker.Tracker
	lastRun *PipelineResult
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) { m.notifier = notifier }
}

// WithSleeper overrides the wait between per-file retry attempts.
func WithSleeper(sleep retry.Sleeper) ManagerOption {
	return func(m *Manager) { m.sleep = sleep }
}

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithRecorder overrides the metrics recorder.
func WithRecorder(recorder *metrics.Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = recorder }
}

// NewManager constructs a workflow manager. Stages are registered separately
// with ConfigureStages.
func NewManager(cfg *config.Config, store *records.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "workflow-manager"),
		now:    time.Now,
		steps:  make(map[stage.ID]pipelineStep),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = notifications.NewService(cfg)
	}
	if m.recorder == nil {
		m.recorder = metrics.NewRecorder()
	}
	return m
}

// ConfigureStages registers the stages the manager may run.
func (m *Manager) ConfigureStages(set StageSet) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps = make(map[stage.ID]pipelineStep)
	if set.Download != nil {
		ingester := set.Download
		m.steps[stage.Download] = pipelineStep{
			id:     stage.Download,
			health: ingester.HealthCheck,
			run: func(ctx context.Context, dryRun bool, _ func(int, int), _ func(string, string)) (stageexec.BatchResult, error) {
				return ingester.Run(ctx, dryRun)
			},
		}
	}
	for _, exec := range []stage.Executor{set.Replica, set.Archive, set.Compress, set.PrepareDelete, set.DeleteOrigin} {
		if exec == nil {
			continue
		}
		m.steps[exec.Name()] = m.executorStep(exec)
	}
}

func (m *Manager) executorStep(exec stage.Executor) pipelineStep {
	return pipelineStep{
		id:     exec.Name(),
		health: exec.HealthCheck,
		run: func(ctx context.Context, dryRun bool, progress func(int, int), onFile func(string, string)) (stageexec.BatchResult, error) {
			return stageexec.Run(ctx, stageexec.Options{
				Logger:   m.logger,
				Store:    m.store,
				Executor: exec,
				Retry:    m.retryPolicy(),
				Workers:  m.cfg.Workflow.Workers,
				DryRun:   dryRun,
				Progress: progress,
				Sleep:    m.sleep,
				OnFile:   onFile,
			})
		},
	}
}

func (m *Manager) retryPolicy() retry.Policy {
	return retry.Policy{
		Attempts: m.cfg.Retry.Attempts,
		Delay:    time.Duration(m.cfg.Retry.DelaySeconds) * time.Second,
	}
}

// Registered returns the registered stages in pipeline order.
func (m *Manager) Registered() []stage.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []stage.ID
	for _, id := range stage.Order() {
		if _, ok := m.steps[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Recorder exposes the metrics recorder.
func (m *Manager) Recorder() *metrics.Recorder {
	return m.recorder
}
