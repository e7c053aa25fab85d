// Package workflow runs the pipeline stages against the record store.
//
// The Manager resolves the requested stages into the fixed pipeline order
// (download, replica, archive, compress, prepare_delete, delete_origin),
// takes the single-instance lock, and invokes each stage through the stage
// runner. Around every stage it writes a pipeline_run_log row, feeds the
// workflow tracker, records Prometheus metrics, logs aggregate record counts
// and publishes notifications.
//
// A stage with per-file failures stops the run when workflow.stop_on_failure
// is set; an unavailable store or cancellation always does. Nothing here
// decides what work remains: each stage's gate query against the record store
// does, so a stopped or interrupted run resumes by running again.
//
// Dry runs evaluate the gates and report eligible counts without downloading,
// copying, writing rows, snapshots, metrics or notifications.
package workflow
