package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mediaferry/internal/fileutil"
	"mediaferry/internal/logging"
	"mediaferry/internal/records"
	"mediaferry/internal/retry"
	"mediaferry/internal/services"
	"mediaferry/internal/stage"
)

// Options controls a single stage invocation.
type Options struct {
	Logger   *slog.Logger
	Store    *records.Store
	Executor stage.Executor
	Retry    retry.Policy
	// Workers above one processes records concurrently within the stage.
	Workers int
	DryRun  bool
	// Progress is called after each record reaches an outcome.
	Progress func(processed, total int)
	// Sleep overrides the wait between attempts.
	Sleep retry.Sleeper
	// OnFile is called with each record's local path and outcome label.
	OnFile func(path, outcome string)
}

type fileOutcome int

const (
	fileSucceeded fileOutcome = iota
	fileFailed
	fileSkipped
	fileUnchanged
	filePending
)

func (o fileOutcome) String() string {
	switch o {
	case fileSucceeded:
		return "done"
	case fileFailed:
		return "failed"
	case fileSkipped:
		return "skipped"
	case fileUnchanged:
		return "unchanged"
	default:
		return "pending"
	}
}

type runner struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	result    BatchResult
	processed int
}

// Run executes opts.Executor against every record selected by its gate.
// Per-file failures are counted and recorded on the record; the returned
// error is reserved for conditions that must abort the whole run, such as
// records.ErrUnavailable or context cancellation.
func Run(ctx context.Context, opts Options) (BatchResult, error) {
	if opts.Executor == nil {
		return BatchResult{}, errors.New("stage executor is required")
	}
	if opts.Store == nil {
		return BatchResult{}, errors.New("record store is required")
	}

	id := opts.Executor.Name()
	ctx = services.WithStage(ctx, string(id))
	r := &runner{
		opts:   opts,
		logger: logging.WithContext(ctx, opts.Logger),
		result: BatchResult{Stage: id, DryRun: opts.DryRun},
	}
	started := time.Now()
	err := r.run(ctx)
	r.result.Duration = time.Since(started)
	return r.result, err
}

func (r *runner) run(ctx context.Context) error {
	exec := r.opts.Executor
	candidates, err := r.opts.Store.SelectWhere(ctx, exec.Gate())
	if err != nil {
		return fmt.Errorf("select %s candidates: %w", exec.Name(), err)
	}
	r.result.Total = len(candidates)

	if r.opts.DryRun {
		r.logger.Info("dry run: records eligible",
			logging.String(logging.FieldEventType, "stage_dry_run"),
			logging.String("gate", exec.Gate().Name()),
			logging.Int("eligible", len(candidates)),
		)
		return nil
	}
	if len(candidates) == 0 {
		r.logger.Info("no eligible records", logging.String(logging.FieldEventType, "stage_empty"))
		return nil
	}

	if err := exec.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare %s: %w", exec.Name(), err)
	}

	r.logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("eligible", len(candidates)),
		logging.Int("workers", r.workers()),
	)

	if err := r.processAll(ctx, candidates); err != nil {
		return err
	}

	if finisher, ok := exec.(stage.Finisher); ok {
		if err := finisher.Finish(ctx); err != nil {
			logging.WarnWithContext(r.logger, "stage finish hook failed", "stage_finish_failed",
				logging.String(logging.FieldImpact, "per-file outcomes are already committed"),
				logging.Error(err),
			)
		}
	}
	return nil
}

func (r *runner) processAll(ctx context.Context, candidates []records.Record) error {
	if r.workers() <= 1 {
		for i := range candidates {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.process(ctx, &candidates[i]); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i := range candidates {
		if gctx.Err() != nil {
			break
		}
		rec := &candidates[i]
		g.Go(func() error {
			return r.process(gctx, rec)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *runner) workers() int {
	if r.opts.Workers < 1 {
		return 1
	}
	return r.opts.Workers
}

func (r *runner) process(ctx context.Context, candidate *records.Record) error {
	exec := r.opts.Executor
	rec, err := r.opts.Store.GetByID(ctx, candidate.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		logging.WarnWithContext(r.logger, "record vanished before processing", "record_missing",
			logging.Int64(logging.FieldRecordID, candidate.ID),
			logging.String(logging.FieldImpact, "file not processed"),
		)
		r.record(candidate, fileFailed, fmt.Errorf("record %d: %w", candidate.ID, records.ErrNotFound))
		return nil
	}
	if !exec.Gate().Match(*rec) {
		r.logger.Debug("record no longer eligible",
			logging.Int64(logging.FieldRecordID, candidate.ID),
			logging.String("flag", exec.Flag().String()),
		)
		r.record(candidate, fileSkipped, nil)
		return nil
	}

	recCtx := services.WithRecordID(ctx, rec.ID)
	logger := r.logger.With(logging.Int64(logging.FieldRecordID, rec.ID), logging.String("filename", rec.Filename))

	var outcome stage.Outcome
	attempts, execErr := retry.DoWithSleeper(recCtx, r.opts.Retry, r.opts.Sleep, func(ctx context.Context, attempt int) error {
		out, err := exec.Execute(ctx, rec)
		if err == nil {
			outcome = out
			return nil
		}
		if errors.Is(err, stage.ErrMissingLocalFile) || errors.Is(err, records.ErrUnavailable) ||
			errors.Is(err, services.ErrConfiguration) {
			return retry.Permanent(err)
		}
		if ctx.Err() == nil {
			logger.Warn("attempt failed",
				logging.String(logging.FieldEventType, "attempt_failed"),
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", r.opts.Retry.Normalized().Attempts),
				logging.Error(err),
			)
		}
		return err
	})

	// Writes below use a detached context so a file that finished its work
	// still commits when the run is being cancelled.
	commitCtx := context.WithoutCancel(recCtx)

	if execErr != nil {
		if ctx.Err() != nil {
			logger.Info("stage interrupted; file left for the next run", logging.String(logging.FieldEventType, "file_interrupted"))
			return ctx.Err()
		}
		if errors.Is(execErr, records.ErrUnavailable) {
			return execErr
		}
		return r.fail(commitCtx, logger, rec, attempts, execErr)
	}

	return r.commit(commitCtx, logger, rec, outcome)
}

func (r *runner) commit(ctx context.Context, logger *slog.Logger, rec *records.Record, outcome stage.Outcome) error {
	store := r.opts.Store
	flag := r.opts.Executor.Flag()

	var (
		affected bool
		err      error
		result   = fileSucceeded
	)
	switch outcome.Status {
	case stage.StatusUnchanged:
		logger.Info("file unchanged",
			logging.String(logging.FieldEventType, "file_unchanged"),
			logging.String("detail", outcome.Detail),
		)
		r.record(rec, fileUnchanged, nil)
		return nil
	case stage.StatusPending:
		result = filePending
		if flag == records.FlagReplicaConfirmed {
			affected, err = store.MarkReplicaPending(ctx, rec.ID, outcome.Path)
		} else {
			affected, err = store.SetFlag(ctx, rec.ID, flag, records.FlagPending)
		}
	default:
		affected, err = commitDone(ctx, store, flag, rec.ID, outcome)
	}

	if errors.Is(err, records.ErrPreconditionViolated) {
		logging.ErrorWithContext(logger, "flag precondition violated", "gate_violation",
			logging.Alert("gate_violation"),
			logging.String("flag", flag.String()),
			logging.String(logging.FieldImpact, "record left unchanged; deletion safety guard refused the update"),
			logging.Error(err),
		)
		if _, incErr := store.IncrementError(ctx, rec.ID, err.Error()); incErr != nil {
			return incErr
		}
		r.record(rec, fileFailed, err)
		return nil
	}
	if err != nil {
		return err
	}
	if !affected {
		logging.WarnWithContext(logger, "record vanished before commit", "record_missing",
			logging.String("flag", flag.String()),
			logging.String(logging.FieldImpact, "outcome not recorded; the stage work is not reflected in the store"),
		)
		r.record(rec, fileFailed, fmt.Errorf("record %d while recording %s: %w", rec.ID, flag, records.ErrNotFound))
		return nil
	}

	logger.Info("file processed",
		logging.String(logging.FieldEventType, "file_"+outcome.Status.String()),
		logging.String("flag", flag.String()),
		logging.String("path", outcome.Path),
	)
	if result == fileSucceeded && outcome.Replaced != "" && outcome.Replaced != outcome.Path {
		if _, err := fileutil.RemoveIfExists(outcome.Replaced); err != nil {
			logging.WarnWithContext(logger, "replaced file not removed", "replaced_cleanup_failed",
				logging.String("path", outcome.Replaced),
				logging.String(logging.FieldImpact, "stale copy left in the download directory"),
				logging.String(logging.FieldErrorHint, "delete the file by hand; the record already points at the new path"),
				logging.Error(err),
			)
		}
	}
	r.record(rec, result, nil)
	return nil
}


func commitDone(ctx context.Context, store *records.Store, flag records.Flag, id int64, outcome stage.Outcome) (bool, error) {
	switch flag {
	case records.FlagReplicaConfirmed:
		return store.ConfirmReplica(ctx, id, outcome.Path)
	case records.FlagArchiveConfirmed:
		return store.ConfirmArchive(ctx, id, outcome.Path)
	case records.FlagCompressed:
		return store.MarkCompressed(ctx, id, outcome.Path, outcome.InitialSize, outcome.CurrentSize)
	case records.FlagReadyForDelete:
		return store.MarkReadyForDelete(ctx, id, outcome.Path)
	case records.FlagDeletedAtOrigin:
		return store.MarkDeletedAtOrigin(ctx, id)
	default:
		return store.SetFlag(ctx, id, flag, records.FlagDone)
	}
}

func (r *runner) fail(ctx context.Context, logger *slog.Logger, rec *records.Record, attempts int, execErr error) error {
	hint := "inspect the file and the collaborator logs, then rerun the stage"
	if errors.Is(execErr, stage.ErrMissingLocalFile) {
		hint = "the local copy is gone; restore it or re-download from the origin"
	}
	logging.ErrorWithContext(logger, "file failed", "file_failed",
		logging.Int("attempts", attempts),
		logging.String("error_kind", services.FailureKind(execErr)),
		logging.String(logging.FieldErrorHint, hint),
		logging.Error(execErr),
	)
	if _, err := r.opts.Store.IncrementError(ctx, rec.ID, execErr.Error()); err != nil {
		return err
	}
	r.record(rec, fileFailed, execErr)
	return nil
}

func (r *runner) record(rec *records.Record, outcome fileOutcome, err error) {
	r.mu.Lock()
	switch outcome {
	case fileSucceeded:
		r.result.Successful++
	case fileFailed:
		r.result.Failed++
		if r.result.FirstError == nil {
			r.result.FirstError = err
		}
	case fileSkipped:
		r.result.Skipped++
	case fileUnchanged:
		r.result.Unchanged++
	case filePending:
		r.result.Pending++
	}
	r.processed++
	processed, total := r.processed, r.result.Total
	r.mu.Unlock()

	if r.opts.OnFile != nil && rec != nil {
		r.opts.OnFile(rec.LocalPath, outcome.String())
	}
	if r.opts.Progress != nil {
		r.opts.Progress(processed, total)
	}
}
