package workflow

import (
	"context"

	"mediaferry/internal/logging"
	"mediaferry/internal/records"
	"mediaferry/internal/stage"
	"mediaferry/internal/tracker"
)

// StatusSummary represents lightweight pipeline diagnostics.
type StatusSummary struct {
	Counts      records.Stats
	StageHealth map[stage.ID]stage.Health
	Current     *tracker.Snapshot
	LastRun     *PipelineResult
}

// Status returns record counts, stage health and the latest run seen by this
// manager.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	steps := make([]pipelineStep, 0, len(m.steps))
	for _, id := range stage.Order() {
		if st, ok := m.steps[id]; ok {
			steps = append(steps, st)
		}
	}
	track := m.tracker
	var lastRun *PipelineResult
	if m.lastRun != nil {
		copy := *m.lastRun
		lastRun = &copy
	}
	m.mu.RUnlock()

	summary := StatusSummary{StageHealth: make(map[stage.ID]stage.Health, len(steps)), LastRun: lastRun}
	stats, err := m.store.AggregateCounts(ctx)
	if err != nil {
		m.logger.Warn("failed to read record counts", logging.Error(err))
	}
	summary.Counts = stats

	for _, st := range steps {
		if st.health == nil {
			continue
		}
		summary.StageHealth[st.id] = st.health(ctx)
	}
	if track != nil {
		snap := track.Status()
		summary.Current = &snap
	}
	return summary
}
