// Package purge removes media from the origin once it is staged for deletion
// and drops the local delete-pending copy.
package purge

import (
	"context"
	"fmt"
	"log/slog"

	"mediaferry/internal/config"
	"mediaferry/internal/fileutil"
	"mediaferry/internal/gate"
	"mediaferry/internal/logging"
	"mediaferry/internal/records"
	"mediaferry/internal/services"
	"mediaferry/internal/services/icloudpd"
	"mediaferry/internal/stage"
)

// Remover deletes a file from the origin.
type Remover interface {
	DeleteRemote(ctx context.Context, filename, album string) (icloudpd.DeleteResult, error)
}

// Executor implements the delete-origin stage.
type Executor struct {
	cfg     *config.Config
	remover Remover
	logger  *slog.Logger
}

// New constructs the delete-origin executor.
func New(cfg *config.Config, remover Remover, logger *slog.Logger) *Executor {
	return &Executor{cfg: cfg, remover: remover, logger: logging.NewComponentLogger(logger, "purge")}
}

func (e *Executor) Name() stage.ID                { return stage.DeleteOrigin }
func (e *Executor) Gate() gate.Predicate          { return gate.DeleteOrigin() }
func (e *Executor) Flag() records.Flag            { return records.FlagDeletedAtOrigin }
func (e *Executor) Prepare(context.Context) error { return nil }

// Execute deletes the origin copy and then the local delete-pending file. An
// origin that no longer has the file counts as deleted, so a run interrupted
// between the two steps converges.
func (e *Executor) Execute(ctx context.Context, rec *records.Record) (stage.Outcome, error) {
	if e.remover == nil {
		return stage.Outcome{}, services.Wrap(services.ErrConfiguration, string(stage.DeleteOrigin), "delete",
			"no origin delete client configured", nil)
	}
	result, err := e.remover.DeleteRemote(ctx, rec.Filename, e.cfg.Origin.Album)
	if err != nil {
		return stage.Outcome{}, fmt.Errorf("delete %s at origin: %w", rec.Filename, err)
	}
	removed, err := fileutil.RemoveIfExists(rec.LocalPath)
	if err != nil {
		return stage.Outcome{}, fmt.Errorf("remove local copy: %w", err)
	}
	logging.WithContext(ctx, e.logger).Debug("origin copy removed",
		logging.String("origin_result", result.String()),
		logging.Bool("local_removed", removed),
	)
	return stage.Done(rec.LocalPath), nil
}

// HealthCheck reports whether an origin delete command is configured.
func (e *Executor) HealthCheck(context.Context) stage.Health {
	if e.remover == nil {
		return stage.Unhealthy(stage.DeleteOrigin, "origin.delete_command is not configured")
	}
	return stage.Healthy(stage.DeleteOrigin)
}

var _ stage.Executor = (*Executor)(nil)
