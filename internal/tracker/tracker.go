// Package tracker keeps an in-memory view of the current pipeline run for
// status output and crash forensics. It is never read back to resume a run;
// the record store alone decides what work remains.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mediaferry/internal/stage"
)

// Step and run states.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateSkipped   = "skipped"
)

// Step is the tracked progress of one stage.
type Step struct {
	ID        stage.ID  `json:"id"`
	Label     string    `json:"label"`
	State     string    `json:"state"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Percent   float64   `json:"percent"`
	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Duration  float64   `json:"duration_seconds,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// FileEvent records what happened to one file during a step.
type FileEvent struct {
	Path   string    `json:"path"`
	Step   stage.ID  `json:"step"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// Snapshot is a copy of the tracked run.
type Snapshot struct {
	RunID     string      `json:"run_id"`
	State     string      `json:"state"`
	DryRun    bool        `json:"dry_run"`
	Current   stage.ID    `json:"current_step,omitempty"`
	Percent   float64     `json:"percent"`
	Processed int         `json:"files_processed"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at,omitzero"`
	Duration  float64     `json:"duration_seconds,omitempty"`
	Steps     []Step      `json:"steps"`
	Errors    []string    `json:"errors,omitempty"`
	Files     []FileEvent `json:"files,omitempty"`
}

// Tracker is safe for concurrent use by parallel stage workers.
type Tracker struct {
	mu   sync.Mutex
	run  Snapshot
	now  func() time.Time
	keep int
}

// New returns an empty tracker. maxFiles bounds the per-file history kept in
// memory; zero keeps none.
func New(maxFiles int) *Tracker {
	return &Tracker{now: time.Now, keep: maxFiles}
}

// SetClock overrides the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now != nil {
		t.now = now
	}
}

// StartRun resets the tracker for a new run over steps.
func (t *Tracker) StartRun(runID string, steps []stage.ID, dryRun bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run = Snapshot{
		RunID:     runID,
		State:     StateRunning,
		DryRun:    dryRun,
		StartedAt: t.now(),
		Steps:     make([]Step, 0, len(steps)),
	}
	for _, id := range steps {
		t.run.Steps = append(t.run.Steps, Step{ID: id, Label: id.Label(), State: StatePending})
	}
}

// StartStep marks step id as running.
func (t *Tracker) StartStep(id stage.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	step := t.step(id)
	if step == nil {
		return
	}
	step.State = StateRunning
	step.StartedAt = t.now()
	t.run.Current = id
}

// UpdateStepProgress records per-file progress within step id.
func (t *Tracker) UpdateStepProgress(id stage.ID, processed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	step := t.step(id)
	if step == nil {
		return
	}
	step.Processed = processed
	if total > 0 {
		step.Total = total
		step.Percent = float64(processed) / float64(total) * 100
	}
	t.refresh()
}

// CompleteStep finishes step id. A non-empty errMsg is also appended to the
// run's error list.
func (t *Tracker) CompleteStep(id stage.ID, success bool, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	step := t.step(id)
	if step == nil {
		return
	}
	now := t.now()
	step.EndedAt = now
	if !step.StartedAt.IsZero() {
		step.Duration = now.Sub(step.StartedAt).Seconds()
	}
	step.State = StateCompleted
	if !success {
		step.State = StateFailed
	}
	if errMsg != "" {
		step.Error = errMsg
		t.run.Errors = append(t.run.Errors, fmt.Sprintf("%s: %s", id, errMsg))
	}
	t.refresh()
}

// AddFileTracking notes the outcome of one file within step id.
func (t *Tracker) AddFileTracking(path string, id stage.ID, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.keep <= 0 {
		return
	}
	t.run.Files = append(t.run.Files, FileEvent{Path: path, Step: id, Status: status, At: t.now()})
	if over := len(t.run.Files) - t.keep; over > 0 {
		t.run.Files = append([]FileEvent(nil), t.run.Files[over:]...)
	}
}

// CompleteWorkflow finishes the run. Steps never started are marked skipped.
func (t *Tracker) CompleteWorkflow(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.run.EndedAt = now
	t.run.Duration = now.Sub(t.run.StartedAt).Seconds()
	t.run.Current = ""
	t.run.State = StateCompleted
	if !success {
		t.run.State = StateFailed
	}
	for i := range t.run.Steps {
		if t.run.Steps[i].State == StatePending {
			t.run.Steps[i].State = StateSkipped
		}
	}
	t.refresh()
}

// Status returns a copy of the tracked run.
func (t *Tracker) Status() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.run
	out.Steps = append([]Step(nil), t.run.Steps...)
	out.Errors = append([]string(nil), t.run.Errors...)
	out.Files = append([]FileEvent(nil), t.run.Files...)
	return out
}

// Save writes the snapshot to <dir>/<run_id>.json and returns the path.
func (t *Tracker) Save(dir string) (string, error) {
	snap := t.Status()
	if snap.RunID == "" {
		return "", fmt.Errorf("tracker has no active run")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(dir, snap.RunID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize snapshot: %w", err)
	}
	return path, nil
}

func (t *Tracker) step(id stage.ID) *Step {
	for i := range t.run.Steps {
		if t.run.Steps[i].ID == id {
			return &t.run.Steps[i]
		}
	}
	return nil
}

func (t *Tracker) refresh() {
	if len(t.run.Steps) == 0 {
		return
	}
	done, processed := 0, 0
	for _, step := range t.run.Steps {
		if step.State == StateCompleted || step.State == StateFailed {
			done++
		}
		processed += step.Processed
	}
	t.run.Percent = float64(done) / float64(len(t.run.Steps)) * 100
	t.run.Processed = processed
}
