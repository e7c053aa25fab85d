package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"mediaferry/internal/gate"
	"mediaferry/internal/records"
)

// ErrMissingLocalFile marks a record whose local_path no longer exists. The
// runner does not retry it.
var ErrMissingLocalFile = errors.New("local file missing")

// Executor performs one stage's work for a single record. Implementations must
// be idempotent: running Execute again after a crash must converge on the same
// result without duplicating external side effects.
type Executor interface {
	Name() ID
	Gate() gate.Predicate
	Flag() records.Flag
	// Prepare runs once per batch before any record is executed.
	Prepare(ctx context.Context) error
	Execute(ctx context.Context, rec *records.Record) (Outcome, error)
	HealthCheck(ctx context.Context) Health
}

// Finisher is implemented by executors that need a hook after the last record
// of a batch, such as triggering a rescan on the sync peer.
type Finisher interface {
	Finish(ctx context.Context) error
}

// Status classifies a successful Execute call.
type Status int

const (
	// StatusDone means the stage flag should be committed as done.
	StatusDone Status = iota
	// StatusPending means partial progress is committed and the record stays
	// eligible for the next run.
	StatusPending
	// StatusUnchanged means nothing was done and nothing is written.
	StatusUnchanged
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusPending:
		return "pending"
	case StatusUnchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome carries what the runner needs to commit a record's result.
type Outcome struct {
	Status Status
	// Path is the file location the stage produced. Its meaning depends on the
	// stage: replica path, archive path, or the record's new local path.
	Path        string
	InitialSize int64
	CurrentSize int64
	Detail      string
	// Replaced names a file the new Path supersedes. The runner removes it
	// only after the outcome is committed, so an interrupted run still finds
	// the record's local file.
	Replaced string
}

// Done reports a completed stage for the file at path.
func Done(path string) Outcome {
	return Outcome{Status: StatusDone, Path: path}
}

// Pending reports partial progress at path.
func Pending(path, detail string) Outcome {
	return Outcome{Status: StatusPending, Path: path, Detail: detail}
}

// Unchanged reports an idempotent no-op.
func Unchanged(detail string) Outcome {
	return Outcome{Status: StatusUnchanged, Detail: detail}
}

// RequireLocalFile returns the size of the record's local file or an error
// wrapping ErrMissingLocalFile.
func RequireLocalFile(rec *records.Record) (int64, error) {
	if rec == nil || strings.TrimSpace(rec.LocalPath) == "" {
		return 0, fmt.Errorf("%w: record has no local path", ErrMissingLocalFile)
	}
	info, err := os.Stat(rec.LocalPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrMissingLocalFile, rec.LocalPath)
		}
		return 0, fmt.Errorf("stat local file: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrMissingLocalFile, rec.LocalPath)
	}
	return info.Size(), nil
}
