// Package archive copies media into the long-term NAS archive.
package archive

import (
	"context"
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

// Executor implements the archive stage.
type Executor struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New constructs the archive executor.
func New(cfg *config.Config, logger *slog.Logger) *Executor {
	return &Executor{cfg: cfg, logger: logging.NewComponentLogger(logger, "archive")}
}

func (e *Executor) Name() stage.ID                { return stage.Archive }
func (e *Executor) Gate() gate.Predicate          { return gate.Archive() }
func (e *Executor) Flag() records.Flag            { return records.FlagArchiveConfirmed }
func (e *Executor) Prepare(context.Context) error { return nil }

// Target returns the archive location for rec.
func (e *Executor) Target(rec *records.Record) string {
	if e.cfg.Archive.Layout == config.ArchiveLayoutFlat {
		return filepath.Join(e.cfg.Paths.ArchiveDir, rec.Filename)
	}
	created := rec.CreatedDate
	if created.IsZero() {
		created = rec.CreatedAt
	}
	return filepath.Join(e.cfg.Paths.ArchiveDir, created.Format("2006"), created.Format("01"), rec.Filename)
}

// Execute copies the file unless an identical copy is already archived.
func (e *Executor) Execute(ctx context.Context, rec *records.Record) (stage.Outcome, error) {
	if _, err := stage.RequireLocalFile(rec); err != nil {
		return stage.Outcome{}, err
	}
	target := e.Target(rec)
	copied, err := fileutil.CopyIfDifferent(rec.LocalPath, target)
	if err != nil {
		return stage.Outcome{}, fmt.Errorf("copy to archive: %w", err)
	}
	if !copied {
		logging.WithContext(ctx, e.logger).Debug("archive copy already present", logging.String("path", target))
	}
	return stage.Done(target), nil
}

// HealthCheck verifies the archive mount is present and writable.
func (e *Executor) HealthCheck(ctx context.Context) stage.Health {
	info, err := os.Stat(e.cfg.Paths.ArchiveDir)
	if err != nil || !info.IsDir() {
		return stage.Unhealthy(stage.Archive, fmt.Sprintf("archive directory %s unavailable", e.cfg.Paths.ArchiveDir))
	}
	probe, err := os.CreateTemp(e.cfg.Paths.ArchiveDir, ".mediaferry-probe-*")
	if err != nil {
		return stage.Unhealthy(stage.Archive, fmt.Sprintf("archive directory not writable: %v", err))
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return stage.Healthy(stage.Archive)
}

var _ stage.Executor = (*Executor)(nil)
