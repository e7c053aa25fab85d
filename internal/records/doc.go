// Package records persists one row per tracked media file in SQLite and is the
// pipeline's single source of truth for "which stage is this file in".
//
// Each record carries tri-state stage flags (unset, pending, done) that only
// ever move forward, size bookkeeping for compression savings, and an error
// counter that accumulates across runs. Stage gates select eligible records by
// querying committed state, so the store doubles as the resume checkpoint:
// re-running the pipeline after a crash re-evaluates the gates and continues
// where the last committed write left off.
//
// Flags are addressed through the closed Flag enum and typed setters; there is
// no "update any column" entry point. Setters that would break a cross-flag
// invariant (ready_for_delete without both replicas, deleted_at_origin without
// ready_for_delete) are guarded in SQL and report ErrPreconditionViolated.
//
// The pipeline_run_log table records one row per stage invocation for
// historical reporting only; nothing reads it for gating.
package records
