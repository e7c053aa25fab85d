package stageexec

import (
	"fmt"
	"time"

	"mediaferry/internal/stage"
)

// BatchResult summarises one stage invocation.
type BatchResult struct {
	Stage      stage.ID
	Total      int
	Successful int
	Failed     int
	Skipped    int
	// Unchanged counts files the stage looked at and deliberately left as
	// they were, such as a compression below the savings threshold.
	Unchanged  int
	Pending    int
	FirstError error
	Duration   time.Duration
	DryRun     bool
}

// OK reports whether no file failed.
func (r BatchResult) OK() bool {
	return r.Failed == 0
}

// Processed is the number of records that reached a final per-file outcome.
func (r BatchResult) Processed() int {
	return r.Successful + r.Failed + r.Skipped + r.Unchanged + r.Pending
}

// Summary renders the counters on one line.
func (r BatchResult) Summary() string {
	if r.DryRun {
		return fmt.Sprintf("%d eligible (dry run)", r.Total)
	}
	return fmt.Sprintf("%d total, %d ok, %d failed, %d skipped, %d unchanged, %d pending",
		r.Total, r.Successful, r.Failed, r.Skipped, r.Unchanged, r.Pending)
}

// FirstErrorMessage returns the first failure's message or an empty string.
func (r BatchResult) FirstErrorMessage() string {
	if r.FirstError == nil {
		return ""
	}
	return r.FirstError.Error()
}
