// Package stage defines the contract every per-file pipeline stage satisfies,
// the fixed stage order, and the outcome values executors report back to the
// runner.
package stage
