// Package preflight provides readiness checks for the directories, commands
// and services the pipeline depends on.
//
// The validate command prints every result. The orchestrator logs failed
// directory checks before the first stage; files in affected stages then fail
// individually and stay eligible for the next run.
package preflight
