package records

import (
	"context"
	"time"
)

// AggregateCounts computes per-flag counts in a single pass over the media table.
func (s *Store) AggregateCounts(ctx context.Context) (Stats, error) {
	since := formatTime(s.now().Add(-24 * time.Hour))
	row := s.db.QueryRowContext(ensureContext(ctx), `
		SELECT
			COUNT(1),
			COALESCE(SUM(CASE WHEN replica_confirmed = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN replica_confirmed = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN archive_confirmed = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN compressed = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ready_for_delete = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted_at_origin = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error_count > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN compressed = 'done' AND initial_size IS NOT NULL AND current_size IS NOT NULL
				THEN initial_size - current_size ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN last_updated >= ? THEN 1 ELSE 0 END), 0)
		FROM media`, since)

	var stats Stats
	if err := row.Scan(
		&stats.Total,
		&stats.ReplicaConfirmed,
		&stats.ReplicaPending,
		&stats.ArchiveConfirmed,
		&stats.Compressed,
		&stats.ReadyForDelete,
		&stats.DeletedAtOrigin,
		&stats.WithErrors,
		&stats.BytesSaved,
		&stats.UpdatedLast24h,
	); err != nil {
		return Stats{}, unavailable("aggregate counts", err)
	}
	return stats, nil
}

// FailedRecords returns records that have accumulated errors and have not
// completed the pipeline, most recently updated first.
func (s *Store) FailedRecords(ctx context.Context, limit int) ([]Record, error) {
	return s.List(ctx, ListOptions{FailedOnly: true, Limit: limit})
}
