package records

import (
	"context"
	"time"
)

// StartRunLog inserts a running pipeline_run_log row for a stage invocation.
func (s *Store) StartRunLog(ctx context.Context, runID, stage string, dryRun bool, startedAt time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO pipeline_run_log (run_id, stage, status, dry_run, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, stage, RunStatusRunning, boolToInt(dryRun), formatTime(startedAt))
	if err != nil {
		return 0, unavailable("start run log", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("start run log id", err)
	}
	return id, nil
}

// FinishRunLog completes a pipeline_run_log row with the stage outcome.
func (s *Store) FinishRunLog(ctx context.Context, entry RunLogEntry) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE pipeline_run_log
		 SET status = ?, completed_at = ?, files_total = ?, files_successful = ?, files_failed = ?,
		     files_skipped = ?, files_unchanged = ?, files_pending = ?, error_message = ?
		 WHERE id = ?`,
		entry.Status,
		formatTime(entry.CompletedAt),
		entry.Total,
		entry.Successful,
		entry.Failed,
		entry.Skipped,
		entry.Unchanged,
		entry.Pending,
		nullableString(entry.Error),
		entry.ID,
	)
	if err != nil {
		return unavailable("finish run log", err)
	}
	return nil
}

// RecentRunLog returns the newest stage invocations first.
func (s *Store) RecentRunLog(ctx context.Context, limit int) ([]RunLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, run_id, stage, status, dry_run, started_at, completed_at, files_total, files_successful,
		        files_failed, files_skipped, files_unchanged, files_pending, error_message
		 FROM pipeline_run_log ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("query run log", err)
	}
	defer rows.Close()

	var out []RunLogEntry
	for rows.Next() {
		var (
			entry        RunLogEntry
			dryRun       int
			startedRaw   string
			completedRaw *string
			errorMessage *string
		)
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Stage, &entry.Status, &dryRun, &startedRaw, &completedRaw,
			&entry.Total, &entry.Successful, &entry.Failed, &entry.Skipped, &entry.Unchanged, &entry.Pending,
			&errorMessage); err != nil {
			return nil, unavailable("scan run log", err)
		}
		entry.DryRun = dryRun != 0
		if t, err := parseTimeString(startedRaw); err == nil {
			entry.StartedAt = t
		}
		if completedRaw != nil {
			if t, err := parseTimeString(*completedRaw); err == nil {
				entry.CompletedAt = t
			}
		}
		if errorMessage != nil {
			entry.Error = *errorMessage
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate run log", err)
	}
	return out, nil
}
