package records

import (
	"context"
	"fmt"
	"time"
)

// flagGuards are the cross-flag preconditions a done transition must satisfy.
var flagGuards = map[Flag]string{
	FlagReadyForDelete:  ` AND replica_confirmed = 'done' AND archive_confirmed = 'done'`,
	FlagDeletedAtOrigin: ` AND ready_for_delete = 'done'`,
}

type columnSet struct {
	expr string
	arg  any
}

// SetFlag moves flag forward on record id. Pending never overwrites done, and
// done transitions clear the stale last_error. It returns false when no record
// with id exists. Moving a flag back to unset is rejected.
func (s *Store) SetFlag(ctx context.Context, id int64, flag Flag, state FlagState) (bool, error) {
	return s.setFlag(ctx, id, flag, state)
}

func (s *Store) setFlag(ctx context.Context, id int64, flag Flag, state FlagState, extra ...columnSet) (bool, error) {
	col := flag.Column()
	if col == "" {
		return false, fmt.Errorf("%w: unknown flag %d", ErrInvalidTransition, int(flag))
	}

	var (
		query string
		args  []any
	)
	switch state {
	case FlagPending:
		query = `UPDATE media SET ` + col + ` = CASE WHEN ` + col + ` = 'done' THEN ` + col + ` ELSE 'pending' END, last_updated = ?`
		args = append(args, s.timestamp())
	case FlagDone:
		query = `UPDATE media SET ` + col + ` = 'done', last_updated = ?, last_error = NULL`
		args = append(args, s.timestamp())
	default:
		return false, fmt.Errorf("%w: %s cannot be set to %s", ErrInvalidTransition, col, state)
	}
	for _, set := range extra {
		query += `, ` + set.expr
		args = append(args, set.arg)
	}
	query += ` WHERE id = ?`
	args = append(args, id)
	guard := ""
	if state == FlagDone {
		guard = flagGuards[flag]
	}
	query += guard

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return false, unavailable("set "+col, err)
	}
	affected, err := rowsAffected(res, "set "+col)
	if err != nil || affected || guard == "" {
		return affected, err
	}

	found, err := s.exists(ctx, id)
	if err != nil {
		return false, err
	}
	if found {
		return false, fmt.Errorf("%w: record %d cannot set %s", ErrPreconditionViolated, id, col)
	}
	return false, nil
}

// MarkReplicaPending records that the file was copied into the replica folder
// and is awaiting confirmation from the sync peer.
func (s *Store) MarkReplicaPending(ctx context.Context, id int64, replicaPath string) (bool, error) {
	return s.setFlag(ctx, id, FlagReplicaConfirmed, FlagPending, columnSet{"replica_path = ?", nullableString(replicaPath)})
}

// ConfirmReplica marks the replica copy as confirmed by the sync peer.
func (s *Store) ConfirmReplica(ctx context.Context, id int64, replicaPath string) (bool, error) {
	return s.setFlag(ctx, id, FlagReplicaConfirmed, FlagDone, columnSet{"replica_path = COALESCE(?, replica_path)", nullableString(replicaPath)})
}

// ConfirmArchive marks the NAS archive copy as verified.
func (s *Store) ConfirmArchive(ctx context.Context, id int64, archivePath string) (bool, error) {
	return s.setFlag(ctx, id, FlagArchiveConfirmed, FlagDone, columnSet{"archive_path = ?", nullableString(archivePath)})
}

// MarkCompressed records a committed compression. initial_size keeps the first
// value ever written; current_size and local_path reflect the new file.
func (s *Store) MarkCompressed(ctx context.Context, id int64, localPath string, initialSize, currentSize int64) (bool, error) {
	return s.setFlag(ctx, id, FlagCompressed, FlagDone,
		columnSet{"compressed_at = ?", formatTime(s.now())},
		columnSet{"initial_size = COALESCE(initial_size, ?)", nullableSize(initialSize)},
		columnSet{"current_size = ?", nullableSize(currentSize)},
		columnSet{"local_path = ?", localPath},
	)
}

// MarkReadyForDelete records the file's move into the delete-pending folder.
// It fails with ErrPreconditionViolated unless both replicas are confirmed.
func (s *Store) MarkReadyForDelete(ctx context.Context, id int64, localPath string) (bool, error) {
	return s.setFlag(ctx, id, FlagReadyForDelete, FlagDone, columnSet{"local_path = ?", localPath})
}

// MarkDeletedAtOrigin records that the origin copy and the local copy are gone.
// It fails with ErrPreconditionViolated unless ready_for_delete is done.
func (s *Store) MarkDeletedAtOrigin(ctx context.Context, id int64) (bool, error) {
	return s.setFlag(ctx, id, FlagDeletedAtOrigin, FlagDone)
}

// UpdateLocalPath records a new location for the file without touching flags.
func (s *Store) UpdateLocalPath(ctx context.Context, id int64, localPath string) (bool, error) {
	res, err := s.execWithRetry(ctx, `UPDATE media SET local_path = ?, last_updated = ? WHERE id = ?`, localPath, s.timestamp(), id)
	if err != nil {
		return false, unavailable("update local path", err)
	}
	return rowsAffected(res, "update local path")
}

// IncrementError bumps error_count and stores message as last_error. The
// counter never decreases. It returns false when no record with id exists.
func (s *Store) IncrementError(ctx context.Context, id int64, message string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE media SET error_count = error_count + 1, last_error = ?, last_updated = ? WHERE id = ?`,
		message, s.timestamp(), id)
	if err != nil {
		return false, unavailable("increment error", err)
	}
	return rowsAffected(res, "increment error")
}

// SetClock overrides the store's time source. Tests use it to pin timestamps.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}
