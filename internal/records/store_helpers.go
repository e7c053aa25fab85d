package records

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const recordColumns = "id, filename, source_id, created_date, local_path, status, replica_confirmed, replica_path, archive_confirmed, archive_path, compressed, compressed_at, initial_size, current_size, ready_for_delete, deleted_at_origin, error_count, last_error, created_at, last_updated"

// timestampLayout is fixed width so stored timestamps compare correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec             Record
		createdDateRaw  sql.NullString
		statusStr       string
		replica         sql.NullString
		replicaPath     sql.NullString
		archive         sql.NullString
		archivePath     sql.NullString
		compressed      sql.NullString
		compressedAtRaw sql.NullString
		initialSize     sql.NullInt64
		currentSize     sql.NullInt64
		readyForDelete  sql.NullString
		deletedOrigin   sql.NullString
		lastError       sql.NullString
		createdRaw      string
		updatedRaw      string
	)

	if err := scanner.Scan(
		&rec.ID,
		&rec.Filename,
		&rec.SourceID,
		&createdDateRaw,
		&rec.LocalPath,
		&statusStr,
		&replica,
		&replicaPath,
		&archive,
		&archivePath,
		&compressed,
		&compressedAtRaw,
		&initialSize,
		&currentSize,
		&readyForDelete,
		&deletedOrigin,
		&rec.ErrorCount,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec.Status = Status(statusStr)
	rec.ReplicaConfirmed = FlagState(replica.String)
	rec.ReplicaPath = replicaPath.String
	rec.ArchiveConfirmed = FlagState(archive.String)
	rec.ArchivePath = archivePath.String
	rec.Compressed = FlagState(compressed.String)
	rec.InitialSize = initialSize.Int64
	rec.CurrentSize = currentSize.Int64
	rec.ReadyForDelete = FlagState(readyForDelete.String)
	rec.DeletedAtOrigin = FlagState(deletedOrigin.String)
	rec.LastError = lastError.String

	if t, err := parseTimeString(createdDateRaw.String); err == nil {
		rec.CreatedDate = t
	}
	if t, err := parseTimeString(compressedAtRaw.String); err == nil {
		rec.CompressedAt = t
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		rec.LastUpdated = t
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

func nullableSize(value int64) any {
	if value <= 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

var timeLayouts = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimeString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ParseTimestamp parses the timestamp formats accepted for created_date.
func ParseTimestamp(value string) (time.Time, error) {
	return parseTimeString(value)
}
