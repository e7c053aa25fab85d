package records

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Status is the coarse lifecycle marker on a media record.
type Status string

// StatusDownloaded is the only entry state: ingest creates records once the
// file is present locally.
const StatusDownloaded Status = "downloaded"

// FlagState is the persisted value of a stage flag.
type FlagState string

const (
	FlagUnset   FlagState = ""
	FlagPending FlagState = "pending"
	FlagDone    FlagState = "done"
)

// IsDone reports whether the flag reached its terminal state.
func (s FlagState) IsDone() bool { return s == FlagDone }

// String renders unset flags as "unset" for display.
func (s FlagState) String() string {
	if s == FlagUnset {
		return "unset"
	}
	return string(s)
}

// Flag identifies one of the per-record stage flags.
type Flag int

const (
	FlagReplicaConfirmed Flag = iota + 1
	FlagArchiveConfirmed
	FlagCompressed
	FlagReadyForDelete
	FlagDeletedAtOrigin
)

var flagColumns = map[Flag]string{
	FlagReplicaConfirmed: "replica_confirmed",
	FlagArchiveConfirmed: "archive_confirmed",
	FlagCompressed:       "compressed",
	FlagReadyForDelete:   "ready_for_delete",
	FlagDeletedAtOrigin:  "deleted_at_origin",
}

// AllFlags lists every stage flag in pipeline order.
func AllFlags() []Flag {
	return []Flag{FlagReplicaConfirmed, FlagArchiveConfirmed, FlagCompressed, FlagReadyForDelete, FlagDeletedAtOrigin}
}

// Column returns the database column backing the flag. Unknown flags return
// an empty string.
func (f Flag) Column() string {
	return flagColumns[f]
}

func (f Flag) String() string {
	if col := f.Column(); col != "" {
		return col
	}
	return fmt.Sprintf("flag(%d)", int(f))
}

// ParseFlag resolves a column name to its flag.
func ParseFlag(name string) (Flag, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for flag, col := range flagColumns {
		if col == name {
			return flag, true
		}
	}
	return 0, false
}

var (
	// ErrUnavailable marks failures of the database itself. Callers treat it as
	// fatal for the whole run.
	ErrUnavailable = errors.New("record store unavailable")
	// ErrInvalidTransition is returned when a caller asks to move a flag
	// backwards or to an unknown state.
	ErrInvalidTransition = errors.New("invalid flag transition")
	// ErrPreconditionViolated is returned when a guarded setter matched the
	// record but its cross-flag precondition did not hold.
	ErrPreconditionViolated = errors.New("flag precondition violated")
	// ErrNotFound is returned when a record disappeared while a stage was
	// working on it.
	ErrNotFound = errors.New("record not found")
)

// Record is the persisted tracking state of a single media file.
type Record struct {
	ID               int64
	Filename         string
	SourceID         string
	CreatedDate      time.Time
	LocalPath        string
	Status           Status
	ReplicaConfirmed FlagState
	ReplicaPath      string
	ArchiveConfirmed FlagState
	ArchivePath      string
	Compressed       FlagState
	CompressedAt     time.Time
	InitialSize      int64
	CurrentSize      int64
	ReadyForDelete   FlagState
	DeletedAtOrigin  FlagState
	ErrorCount       int
	LastError        string
	CreatedAt        time.Time
	LastUpdated      time.Time
}

// State returns the current value of flag f.
func (r Record) State(f Flag) FlagState {
	switch f {
	case FlagReplicaConfirmed:
		return r.ReplicaConfirmed
	case FlagArchiveConfirmed:
		return r.ArchiveConfirmed
	case FlagCompressed:
		return r.Compressed
	case FlagReadyForDelete:
		return r.ReadyForDelete
	case FlagDeletedAtOrigin:
		return r.DeletedAtOrigin
	default:
		return FlagUnset
	}
}

// Extension returns the lower-case file extension without the dot.
func (r Record) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(r.Filename)), ".")
}

// AgeYears returns the age of the media at now, based on the origin creation
// date. Records without a creation date fall back to CreatedAt.
func (r Record) AgeYears(now time.Time) float64 {
	created := r.CreatedDate
	if created.IsZero() {
		created = r.CreatedAt
	}
	if created.IsZero() || now.Before(created) {
		return 0
	}
	return now.Sub(created).Hours() / 24 / 365
}

// NewRecord describes a file discovered by ingest.
type NewRecord struct {
	Filename    string
	SourceID    string
	CreatedDate time.Time
	LocalPath   string
	Size        int64
}

// Stats aggregates flag counts across all records.
type Stats struct {
	Total            int
	ReplicaConfirmed int
	ReplicaPending   int
	ArchiveConfirmed int
	Compressed       int
	ReadyForDelete   int
	DeletedAtOrigin  int
	WithErrors       int
	BytesSaved       int64
	UpdatedLast24h   int
}

// RunLogEntry is one row of pipeline_run_log.
type RunLogEntry struct {
	ID          int64
	RunID       string
	Stage       string
	Status      string
	DryRun      bool
	StartedAt   time.Time
	CompletedAt time.Time
	Total       int
	Successful  int
	Failed      int
	Skipped     int
	Unchanged   int
	Pending     int
	Error       string
}

// Duration returns the wall time of the stage invocation.
func (e RunLogEntry) Duration() time.Duration {
	if e.CompletedAt.IsZero() || e.StartedAt.IsZero() {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// Run log statuses.
const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
	RunStatusInterrupted = "interrupted"
)

// DatabaseHealth captures diagnostic information about the record database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRecords     int
	Error            string
}
