// Package replica copies media into the Syncthing-shared replica folder and
// confirms the copy once the sync peer reports it as fully synced.
package replica

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"mediaferry/internal/config"
	"mediaferry/internal/fileutil"
	"mediaferry/internal/gate"
	"mediaferry/internal/logging"
	"mediaferry/internal/records"
	"mediaferry/internal/stage"
)

// Confirmer reports which files of the replica folder the sync peer holds in
// their latest version.
type Confirmer interface {
	FullySynced(ctx context.Context, folderID string) ([]string, error)
	Scan(ctx context.Context, folderID string) error
	Ping(ctx context.Context) error
}

// Executor implements the replica stage.
type Executor struct {
	cfg       *config.Config
	confirmer Confirmer
	logger    *slog.Logger

	mu     sync.RWMutex
	synced map[string]bool
	copied atomic.Int64
}

// New constructs the replica executor. A nil confirmer treats a verified copy
// as confirmed.
func New(cfg *config.Config, confirmer Confirmer, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:       cfg,
		confirmer: confirmer,
		logger:    logging.NewComponentLogger(logger, "replica"),
	}
}

func (e *Executor) Name() stage.ID       { return stage.Replica }
func (e *Executor) Gate() gate.Predicate { return gate.Replica() }
func (e *Executor) Flag() records.Flag   { return records.FlagReplicaConfirmed }

// Prepare loads the set of fully synced files for the batch. A sync peer that
// cannot be reached leaves every copy pending rather than failing the stage.
func (e *Executor) Prepare(ctx context.Context) error {
	e.copied.Store(0)
	e.mu.Lock()
	e.synced = nil
	e.mu.Unlock()

	if e.confirmer == nil {
		return nil
	}
	names, err := e.confirmer.FullySynced(ctx, e.cfg.Replica.FolderID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnWithContext(e.logger, "sync peer status unavailable; copies stay pending", "replica_status_unavailable",
			logging.String(logging.FieldErrorHint, "check the Syncthing API url and key"),
			logging.Error(err),
		)
		names = nil
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[filepath.Base(name)] = true
	}
	e.mu.Lock()
	e.synced = set
	e.mu.Unlock()
	logging.WithContext(ctx, e.logger).Debug("sync peer status loaded", logging.Int("synced_files", len(set)))
	return nil
}

// Execute copies the record's file into the replica folder when the folder
// does not already hold an identical copy, then reports the copy as done when
// it is confirmed by the sync peer.
func (e *Executor) Execute(ctx context.Context, rec *records.Record) (stage.Outcome, error) {
	if _, err := stage.RequireLocalFile(rec); err != nil {
		return stage.Outcome{}, err
	}
	if err := os.MkdirAll(e.cfg.Paths.ReplicaDir, 0o755); err != nil {
		return stage.Outcome{}, fmt.Errorf("create replica dir: %w", err)
	}
	target := filepath.Join(e.cfg.Paths.ReplicaDir, rec.Filename)
	copied, err := fileutil.CopyIfDifferent(rec.LocalPath, target)
	if err != nil {
		return stage.Outcome{}, fmt.Errorf("copy to replica: %w", err)
	}
	if copied {
		e.copied.Add(1)
	}

	if e.confirmer == nil {
		return stage.Done(target), nil
	}
	e.mu.RLock()
	confirmed := e.synced[rec.Filename]
	e.mu.RUnlock()
	if confirmed {
		return stage.Done(target), nil
	}
	return stage.Pending(target, "awaiting sync peer"), nil
}

// Finish asks the sync peer to rescan the folder when this batch added files.
func (e *Executor) Finish(ctx context.Context) error {
	if e.confirmer == nil || !e.cfg.Replica.TriggerScan || e.copied.Load() == 0 {
		return nil
	}
	if err := e.confirmer.Scan(ctx, e.cfg.Replica.FolderID); err != nil {
		return fmt.Errorf("trigger replica scan: %w", err)
	}
	return nil
}

// HealthCheck verifies the replica folder and the sync peer API.
func (e *Executor) HealthCheck(ctx context.Context) stage.Health {
	info, err := os.Stat(e.cfg.Paths.ReplicaDir)
	if err != nil || !info.IsDir() {
		return stage.Unhealthy(stage.Replica, fmt.Sprintf("replica directory %s unavailable", e.cfg.Paths.ReplicaDir))
	}
	if e.confirmer != nil {
		if err := e.confirmer.Ping(ctx); err != nil {
			return stage.Unhealthy(stage.Replica, fmt.Sprintf("sync peer unreachable: %v", err))
		}
	}
	return stage.Healthy(stage.Replica)
}

var (
	_ stage.Executor = (*Executor)(nil)
	_ stage.Finisher = (*Executor)(nil)
)
