package drapto

import (
	"time"

	draptolib "github.com/five82/drapto"
)

// Progress is a condensed Drapto event.
type Progress struct {
	Stage        string
	Percent      float64
	Message      string
	ETA          time.Duration
	Warning      string
	Failure      string
	OriginalSize int64
	EncodedSize  int64
}

// reporter adapts Drapto's Reporter callbacks to a single Progress callback.
// Events the compression stage has no use for are dropped.
type reporter struct {
	callback func(Progress)
}

func newReporter(callback func(Progress)) *reporter {
	return &reporter{callback: callback}
}

func (r *reporter) Hardware(draptolib.HardwareSummary) {}

func (r *reporter) Initialization(s draptolib.InitializationSummary) {
	r.callback(Progress{Stage: "initialization", Message: s.InputFile})
}

func (r *reporter) StageProgress(s draptolib.StageProgress) {
	var eta time.Duration
	if s.ETA != nil {
		eta = *s.ETA
	}
	r.callback(Progress{
		Stage:   s.Stage,
		Percent: float64(s.Percent),
		Message: s.Message,
		ETA:     eta,
	})
}

func (r *reporter) CropResult(draptolib.CropSummary) {}

func (r *reporter) EncodingConfig(draptolib.EncodingConfigSummary) {}

func (r *reporter) EncodingStarted(uint64) {
	r.callback(Progress{Stage: "encoding"})
}

func (r *reporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.callback(Progress{
		Stage:   "encoding",
		Percent: float64(s.Percent),
		ETA:     s.ETA,
	})
}

func (r *reporter) ValidationComplete(s draptolib.ValidationSummary) {
	msg := "validation passed"
	if !s.Passed {
		msg = "validation failed"
	}
	r.callback(Progress{Stage: "validation", Message: msg})
}

func (r *reporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.callback(Progress{
		Stage:        "complete",
		Percent:      100,
		OriginalSize: int64(s.OriginalSize),
		EncodedSize:  int64(s.EncodedSize),
	})
}

func (r *reporter) Warning(message string) {
	r.callback(Progress{Warning: message})
}

func (r *reporter) Error(e draptolib.ReporterError) {
	r.callback(Progress{Failure: e.Title + ": " + e.Message})
}

func (r *reporter) OperationComplete(message string) {
	r.callback(Progress{Stage: "complete", Message: message})
}

func (r *reporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *reporter) FileProgress(draptolib.FileProgressContext) {}

func (r *reporter) BatchComplete(draptolib.BatchSummary) {}

var _ draptolib.Reporter = (*reporter)(nil)
