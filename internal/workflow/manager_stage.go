package workflow

import (
	"context"
	"errors"
	"log/slog"

	"mediaferry/internal/logging"
	"mediaferry/internal/records"
	"mediaferry/internal/services"
	"mediaferry/internal/stageexec"
	"mediaferry/internal/tracker"
)

// runStep invokes one stage and records it in the run log, the tracker, the
// metrics recorder and the stage-complete notification. Dry runs touch none
// of the persistent sinks.
func (m *Manager) runStep(ctx context.Context, runLogger *slog.Logger, track *tracker.Tracker, st pipelineStep, dryRun bool) (stageexec.BatchResult, error) {
	stageCtx := services.WithStage(ctx, string(st.id))
	logger := logging.WithContext(stageCtx, m.logger)
	started := m.now()
	track.StartStep(st.id)

	var logID int64
	if !dryRun {
		runID, _ := services.RunIDFromContext(ctx)
		id, err := m.store.StartRunLog(ctx, runID, string(st.id), dryRun, started)
		if err != nil {
			track.CompleteStep(st.id, false, err.Error())
			return stageexec.BatchResult{Stage: st.id}, err
		}
		logID = id
	}

	progress := func(processed, total int) {
		track.UpdateStepProgress(st.id, processed, total)
	}
	onFile := func(path, outcome string) {
		track.AddFileTracking(path, st.id, outcome)
	}
	batch, runErr := st.run(stageCtx, dryRun, progress, onFile)
	if batch.Stage == "" {
		batch.Stage = st.id
	}

	status := records.RunStatusCompleted
	errMsg := batch.FirstErrorMessage()
	switch {
	case runErr != nil && isCancellation(runErr):
		status = records.RunStatusInterrupted
		errMsg = runErr.Error()
	case runErr != nil:
		status = records.RunStatusFailed
		errMsg = runErr.Error()
	case batch.Failed > 0:
		status = records.RunStatusFailed
	}
	track.UpdateStepProgress(st.id, batch.Processed(), batch.Total)
	track.CompleteStep(st.id, status == records.RunStatusCompleted, errMsg)

	logger.Info("stage finished",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("status", status),
		logging.String("summary", batch.Summary()),
		logging.Duration("duration", batch.Duration),
	)

	if dryRun {
		return batch, runErr
	}

	commitCtx := context.WithoutCancel(ctx)
	if err := m.store.FinishRunLog(commitCtx, records.RunLogEntry{
		ID:          logID,
		Status:      status,
		CompletedAt: m.now(),
		Total:       batch.Total,
		Successful:  batch.Successful,
		Failed:      batch.Failed,
		Skipped:     batch.Skipped,
		Unchanged:   batch.Unchanged,
		Pending:     batch.Pending,
		Error:       errMsg,
	}); err != nil {
		logging.WarnWithContext(logger, "run log not finalized", "run_log_failed",
			logging.String(logging.FieldImpact, "history shows the stage as running"),
			logging.Error(err),
		)
		if runErr == nil && errors.Is(err, records.ErrUnavailable) {
			runErr = err
		}
	}

	m.recorder.ObserveStage(batch)
	m.logAggregateCounts(commitCtx, runLogger)
	m.saveSnapshot(logger, track)

	if runErr == nil || !isCancellation(runErr) {
		m.notifyStageComplete(ctx, logger, batch, runErr == nil && batch.Failed == 0)
	}
	return batch, runErr
}

func (m *Manager) logAggregateCounts(ctx context.Context, logger *slog.Logger) {
	stats, err := m.store.AggregateCounts(ctx)
	if err != nil {
		logger.Warn("aggregate counts unavailable", logging.Error(err))
		return
	}
	logger.Info("pipeline counts",
		logging.String(logging.FieldEventType, "pipeline_counts"),
		logging.Int("total", stats.Total),
		logging.Int("replica_confirmed", stats.ReplicaConfirmed),
		logging.Int("replica_pending", stats.ReplicaPending),
		logging.Int("archive_confirmed", stats.ArchiveConfirmed),
		logging.Int("compressed", stats.Compressed),
		logging.Int("ready_for_delete", stats.ReadyForDelete),
		logging.Int("deleted_at_origin", stats.DeletedAtOrigin),
		logging.Int("with_errors", stats.WithErrors),
		logging.Int64("bytes_saved", stats.BytesSaved),
	)
}
