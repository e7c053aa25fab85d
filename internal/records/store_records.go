package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Condition is a SQL selector over the media table. Stage gates implement it.
type Condition interface {
	Where() (clause string, args []any)
}

// UpsertIfAbsent inserts a record keyed on source_id and reports whether a new
// row was created. An existing row is left untouched. The downloaded size
// becomes both initial_size and current_size, so the pre-compression size is
// known before any stage touches the file.
func (s *Store) UpsertIfAbsent(ctx context.Context, rec NewRecord) (bool, error) {
	filename := strings.TrimSpace(rec.Filename)
	if filename == "" {
		return false, errors.New("filename is required")
	}
	sourceID := strings.TrimSpace(rec.SourceID)
	if sourceID == "" {
		sourceID = filename
	}
	if strings.TrimSpace(rec.LocalPath) == "" {
		return false, errors.New("local path is required")
	}

	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO media (filename, source_id, created_date, local_path, status, initial_size, current_size, created_at, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id) DO NOTHING`,
		filename,
		sourceID,
		nullableTime(rec.CreatedDate),
		rec.LocalPath,
		string(StatusDownloaded),
		nullableSize(rec.Size),
		nullableSize(rec.Size),
		now,
		now,
	)
	if err != nil {
		return false, unavailable("insert record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("insert record rows affected", err)
	}
	return affected > 0, nil
}

// GetByID fetches a single record. It returns nil, nil when no row matches.
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+recordColumns+` FROM media WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get record", err)
	}
	return rec, nil
}

// GetBySourceID fetches a record by its origin identifier.
func (s *Store) GetBySourceID(ctx context.Context, sourceID string) (*Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+recordColumns+` FROM media WHERE source_id = ?`, sourceID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get record by source id", err)
	}
	return rec, nil
}

// LocalPathKnown reports whether any record already points at path.
func (s *Store) LocalPathKnown(ctx context.Context, path string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT 1 FROM media WHERE local_path = ? LIMIT 1`, path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("check local path", err)
	}
	return true, nil
}

// SelectWhere returns the committed records matching cond ordered by id.
func (s *Store) SelectWhere(ctx context.Context, cond Condition) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM media`
	var args []any
	if cond != nil {
		clause, condArgs := cond.Where()
		if strings.TrimSpace(clause) != "" {
			query += ` WHERE ` + clause
			args = condArgs
		}
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, unavailable("select records", err)
	}
	out, err := scanRecords(rows)
	if err != nil {
		return nil, unavailable("scan records", err)
	}
	return out, nil
}

// CountWhere returns the number of committed records matching cond.
func (s *Store) CountWhere(ctx context.Context, cond Condition) (int, error) {
	query := `SELECT COUNT(1) FROM media`
	var args []any
	if cond != nil {
		clause, condArgs := cond.Where()
		if strings.TrimSpace(clause) != "" {
			query += ` WHERE ` + clause
			args = condArgs
		}
	}
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), query, args...).Scan(&count); err != nil {
		return 0, unavailable("count records", err)
	}
	return count, nil
}

// ListOptions filters List results.
type ListOptions struct {
	FailedOnly bool
	Limit      int
}

// List returns records ordered by most recent update.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM media`
	if opts.FailedOnly {
		query += ` WHERE error_count > 0 AND deleted_at_origin IS NOT 'done'`
	}
	query += ` ORDER BY last_updated DESC, id DESC`
	var args []any
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, unavailable("list records", err)
	}
	out, err := scanRecords(rows)
	if err != nil {
		return nil, unavailable("scan records", err)
	}
	return out, nil
}

func (s *Store) exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT 1 FROM media WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("check record", err)
	}
	return true, nil
}

func rowsAffected(res sql.Result, operation string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(fmt.Sprintf("%s rows affected", operation), err)
	}
	return n > 0, nil
}
