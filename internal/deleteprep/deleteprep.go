// Package deleteprep stages fully replicated media for deletion at the origin
// by moving it into the delete-pending directory and, when configured, adding
// it to the origin's delete-pending album.
package deleteprep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mediaferry/internal/config"
	"mediaferry/internal/fileutil"
	"mediaferry/internal/gate"
	"mediaferry/internal/logging"
	"mediaferry/internal/records"
	"mediaferry/internal/stage"
)

// Stager adds a file to the origin's delete-pending album.
type Stager interface {
	StageForDeletion(ctx context.Context, path, album string) error
}

// Executor implements the prepare-delete stage.
type Executor struct {
	cfg    *config.Config
	stager Stager
	logger *slog.Logger
}

// New constructs the prepare-delete executor. A nil stager only moves files.
func New(cfg *config.Config, stager Stager, logger *slog.Logger) *Executor {
	return &Executor{cfg: cfg, stager: stager, logger: logging.NewComponentLogger(logger, "deleteprep")}
}

func (e *Executor) Name() stage.ID       { return stage.PrepareDelete }
func (e *Executor) Gate() gate.Predicate { return gate.PrepareDelete() }
func (e *Executor) Flag() records.Flag   { return records.FlagReadyForDelete }

// Prepare makes sure the delete-pending directory exists.
func (e *Executor) Prepare(context.Context) error {
	if err := os.MkdirAll(e.cfg.Paths.DeletePendingDir, 0o755); err != nil {
		return fmt.Errorf("create delete pending dir: %w", err)
	}
	return nil
}

// Execute moves the local file into the delete-pending directory. A record
// whose file was already moved by an interrupted run converges on the same
// target without error.
func (e *Executor) Execute(ctx context.Context, rec *records.Record) (stage.Outcome, error) {
	target := filepath.Join(e.cfg.Paths.DeletePendingDir, filepath.Base(rec.LocalPath))
	if _, err := stage.RequireLocalFile(rec); err != nil {
		if !errors.Is(err, stage.ErrMissingLocalFile) || !fileExists(target) {
			return stage.Outcome{}, err
		}
		logging.WithContext(ctx, e.logger).Debug("file already in delete pending", logging.String("path", target))
	} else if rec.LocalPath != target {
		if err := fileutil.Move(rec.LocalPath, target); err != nil {
			return stage.Outcome{}, fmt.Errorf("move to delete pending: %w", err)
		}
	}

	if e.stager != nil {
		if err := e.stager.StageForDeletion(ctx, target, e.cfg.Origin.Album); err != nil {
			return stage.Outcome{}, fmt.Errorf("stage for deletion at origin: %w", err)
		}
	}
	return stage.Done(target), nil
}

// HealthCheck verifies the delete-pending directory.
func (e *Executor) HealthCheck(context.Context) stage.Health {
	info, err := os.Stat(e.cfg.Paths.DeletePendingDir)
	if err != nil || !info.IsDir() {
		return stage.Unhealthy(stage.PrepareDelete, fmt.Sprintf("delete pending directory %s unavailable", e.cfg.Paths.DeletePendingDir))
	}
	return stage.Healthy(stage.PrepareDelete)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

var _ stage.Executor = (*Executor)(nil)
