package workflow

import (
	"context"
	"time"

	"mediaferry/internal/stage"
	"mediaferry/internal/stageexec"
)

// Ingester is the download step. It does not fit the per-record executor
// contract because it creates records instead of advancing them.
type Ingester interface {
	Name() stage.ID
	Run(ctx context.Context, dryRun bool) (stageexec.BatchResult, error)
	HealthCheck(ctx context.Context) stage.Health
}

// StageSet bundles the concrete stages the manager orchestrates. Nil entries
// are not registered; requesting them logs a skip.
type StageSet struct {
	Download      Ingester
	Replica       stage.Executor
	Archive       stage.Executor
	Compress      stage.Executor
	PrepareDelete stage.Executor
	DeleteOrigin  stage.Executor
}

// RunOptions selects what a pipeline run does.
type RunOptions struct {
	// Stages limits the run to the named stages. Empty runs every registered
	// stage. Order is always the pipeline order.
	Stages []stage.ID
	DryRun bool
}

// PipelineResult summarises one pipeline run.
type PipelineResult struct {
	RunID  string
	Stages []stageexec.BatchResult
	// Success is true only when every invoked stage finished with zero failures.
	Success     bool
	StoppedAt   stage.ID
	Interrupted bool
	Skipped     []stage.ID
	Duration    time.Duration
	DryRun      bool
}

// Failed sums per-file failures across the run.
func (r PipelineResult) Failed() int {
	total := 0
	for _, res := range r.Stages {
		total += res.Failed
	}
	return total
}

// Processed sums per-file outcomes across the run.
func (r PipelineResult) Processed() int {
	total := 0
	for _, res := range r.Stages {
		total += res.Processed()
	}
	return total
}

type stepRunner func(ctx context.Context, dryRun bool, progress func(processed, total int), onFile func(path, outcome string)) (stageexec.BatchResult, error)

type pipelineStep struct {
	id     stage.ID
	health func(ctx context.Context) stage.Health
	run    stepRunner
}
