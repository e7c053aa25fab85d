package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"mediaferry/internal/lock"
	"mediaferry/internal/logging"
	"mediaferry/internal/notifications"
	"mediaferry/internal/preflight"
	"mediaferry/internal/records"
	"mediaferry/internal/services"
	"mediaferry/internal/stage"
	"mediaferry/internal/tracker"
)

// Run executes the requested stages in pipeline order.
//
// Per-file failures are reported through the result, not the error. The
// returned error is reserved for conditions that ended the run early: another
// instance holding the lock, an unavailable store, or cancellation. With
// workflow.stop_on_failure set, the first stage with failures also ends the
// run, leaving the remaining stages for the next invocation.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (PipelineResult, error) {
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, m.logger)
	started := m.now()

	result := PipelineResult{RunID: runID, DryRun: opts.DryRun}
	steps, skipped := m.plan(opts.Stages)
	result.Skipped = skipped
	for _, id := range skipped {
		logger.Info("stage not configured; skipping",
			logging.String(logging.FieldEventType, "stage_not_configured"),
			logging.String(logging.FieldStage, string(id)),
		)
	}
	if len(steps) == 0 {
		return result, errors.New("no configured stages to run")
	}

	if !opts.DryRun {
		lk, err := lock.Acquire(m.cfg.LockPath())
		if err != nil {
			return result, err
		}
		defer func() {
			if err := lk.Release(); err != nil {
				logger.Warn("lock release failed", logging.Error(err))
			}
		}()
		if err := m.backupBeforeRun(ctx, logger); err != nil {
			return result, err
		}
	}

	ids := make([]stage.ID, 0, len(steps))
	for _, st := range steps {
		ids = append(ids, st.id)
	}
	track := tracker.New(trackedFilesPerRun)
	track.SetClock(m.now)
	track.StartRun(runID, ids, opts.DryRun)
	m.mu.Lock()
	m.tracker = track
	m.mu.Unlock()

	m.logStageHealth(ctx, logger, steps, opts.DryRun)

	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Bool("dry_run", opts.DryRun),
		logging.String("stages", stageList(ids)),
	)
	if !opts.DryRun {
		m.notify(ctx, logger, notifications.EventRunStarted, notifications.Payload{"stages": labels(ids)})
	}

	var (
		runErr        error
		errorNotified bool
	)
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		batch, err := m.runStep(ctx, logger, track, st, opts.DryRun)
		result.Stages = append(result.Stages, batch)

		if err != nil {
			result.StoppedAt = st.id
			runErr = err
			if !isCancellation(err) {
				logging.ErrorWithContext(logger, "pipeline run aborted", "run_aborted",
					logging.Alert("run_aborted"),
					logging.String(logging.FieldStage, string(st.id)),
					logging.String(logging.FieldErrorHint, stageErrorHint(err)),
					logging.Error(err),
				)
				if !opts.DryRun && !errorNotified {
					m.notifyRunError(ctx, logger, st.id, err.Error())
					errorNotified = true
				}
			}
			break
		}
		if batch.Failed > 0 {
			if !opts.DryRun && !errorNotified {
				m.notifyRunError(ctx, logger, st.id, batch.FirstErrorMessage())
				errorNotified = true
			}
			if m.cfg.Workflow.StopOnFailure {
				result.StoppedAt = st.id
				logging.WarnWithContext(logger, "stopping after failed stage", "run_stopped",
					logging.String(logging.FieldStage, string(st.id)),
					logging.Int("failed", batch.Failed),
					logging.String(logging.FieldImpact, "later stages wait for the next run"),
				)
				break
			}
		}
	}

	result.Interrupted = isCancellation(runErr)
	result.Success = runErr == nil && len(result.Stages) == len(steps)
	for _, batch := range result.Stages {
		if batch.Failed > 0 {
			result.Success = false
		}
	}
	result.Duration = m.now().Sub(started)

	track.CompleteWorkflow(result.Success)
	m.finishRun(ctx, logger, track, &result)

	m.mu.Lock()
	last := result
	m.lastRun = &last
	m.mu.Unlock()

	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// plan resolves requested stages into registered steps in pipeline order.
func (m *Manager) plan(requested []stage.ID) ([]pipelineStep, []stage.ID) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := requested
	if len(want) == 0 {
		want = stage.Order()
	}
	var (
		steps   []pipelineStep
		skipped []stage.ID
	)
	for _, id := range stage.Order() {
		if !slices.Contains(want, id) {
			continue
		}
		st, ok := m.steps[id]
		if !ok {
			if len(requested) > 0 {
				skipped = append(skipped, id)
			}
			continue
		}
		steps = append(steps, st)
	}
	return steps, skipped
}

func (m *Manager) backupBeforeRun(ctx context.Context, logger *slog.Logger) error {
	if !m.cfg.Workflow.BackupBeforeRun {
		return nil
	}
	path, err := m.store.Backup(ctx, filepath.Join(m.cfg.Paths.StateDir, "backups"))
	if err != nil {
		return fmt.Errorf("backup before run: %w", err)
	}
	logger.Info("database backed up",
		logging.String(logging.FieldEventType, "backup_complete"),
		logging.String("path", path),
	)
	return nil
}

// logStageHealth warns about unusable directories and stages before a run.
// Stage health checks may write into destination folders, so a dry run only
// looks at the directories.
func (m *Manager) logStageHealth(ctx context.Context, logger *slog.Logger, steps []pipelineStep, dryRun bool) {
	for _, check := range preflight.Directories(m.cfg) {
		if check.Passed {
			continue
		}
		logging.WarnWithContext(logger, "directory check failed", "directory_unavailable",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "stages writing here will fail per file"),
			logging.String(logging.FieldErrorHint, "mount or create the directory, then rerun"),
		)
	}
	if dryRun {
		return
	}
	for _, st := range steps {
		if st.health == nil {
			continue
		}
		health := st.health(ctx)
		if health.Ready {
			continue
		}
		logging.WarnWithContext(logger, "stage not ready", "stage_unhealthy",
			logging.String(logging.FieldStage, string(st.id)),
			logging.String("detail", health.Detail),
			logging.String(logging.FieldImpact, "files in this stage are likely to fail"),
			logging.String(logging.FieldErrorHint, "run mediaferry validate"),
		)
	}
}

// finishRun records run-level metrics, the final snapshot and the completion
// notification. Dry runs only log.
func (m *Manager) finishRun(ctx context.Context, logger *slog.Logger, track *tracker.Tracker, result *PipelineResult) {
	logger.Info("pipeline run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Bool("success", result.Success),
		logging.Bool("dry_run", result.DryRun),
		logging.Bool("interrupted", result.Interrupted),
		logging.Int("processed", result.Processed()),
		logging.Int("failed", result.Failed()),
		logging.Duration("duration", result.Duration),
	)
	if result.DryRun {
		return
	}

	commitCtx := context.WithoutCancel(ctx)
	stats, statsErr := m.store.AggregateCounts(commitCtx)
	if statsErr != nil {
		logger.Warn("aggregate counts unavailable", logging.Error(statsErr))
	} else {
		m.recorder.ObserveStats(stats)
	}
	m.recorder.ObserveRun(result.Success, m.now(), result.Duration)
	if path := m.cfg.Metrics.TextfilePath; path != "" {
		if err := m.recorder.WriteTextfile(path); err != nil {
			logging.WarnWithContext(logger, "metrics textfile not written", "metrics_write_failed",
				logging.String("path", path),
				logging.String(logging.FieldImpact, "scraped run metrics are stale"),
				logging.Error(err),
			)
		}
	}
	m.saveSnapshot(logger, track)

	if result.Interrupted {
		return
	}
	payload := notifications.Payload{
		"success":   result.Success,
		"duration":  result.Duration,
		"processed": result.Processed(),
		"failed":    result.Failed(),
	}
	if statsErr == nil {
		payload["bytesSaved"] = stats.BytesSaved
	}
	m.notify(ctx, logger, notifications.EventRunCompleted, payload)
}

func (m *Manager) saveSnapshot(logger *slog.Logger, track *tracker.Tracker) {
	if !m.cfg.Workflow.Snapshots {
		return
	}
	path, err := track.Save(filepath.Join(m.cfg.Paths.LogDir, "runs"))
	if err != nil {
		logger.Warn("run snapshot not written", logging.Error(err))
		return
	}
	logger.Debug("run snapshot written", logging.String("path", path))
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func stageErrorHint(err error) string {
	if errors.Is(err, records.ErrUnavailable) {
		return "check the state directory and database file, then rerun"
	}
	return "inspect the stage logs and rerun; completed files are not repeated"
}

func labels(ids []stage.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Label())
	}
	return out
}

func stageList(ids []stage.ID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, string(id))
	}
	return strings.Join(names, ",")
}
