// Package metrics exports run results in the Prometheus textfile format so a
// node_exporter textfile collector can scrape the last run of each stage.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mediaferry/internal/records"
	"mediaferry/internal/stageexec"
)

// Recorder holds the gauges for one run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	stageFiles    *prometheus.GaugeVec
	stageDuration *prometheus.GaugeVec
	stageSuccess  *prometheus.GaugeVec
	recordFlags   *prometheus.GaugeVec
	recordsTotal  prometheus.Gauge
	bytesSaved    prometheus.Gauge
	runSuccess    prometheus.Gauge
	runTimestamp  prometheus.Gauge
	runDuration   prometheus.Gauge
}

// NewRecorder registers the pipeline gauges.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		stageFiles: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediaferry_stage_files",
			Help: "Files handled by the last invocation of each stage, by outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediaferry_stage_duration_seconds",
			Help: "Wall time of the last invocation of each stage.",
		}, []string{"stage"}),
		stageSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediaferry_stage_success",
			Help: "1 when the last invocation of the stage had no failures.",
		}, []string{"stage"}),
		recordFlags: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediaferry_records",
			Help: "Records by stage flag state.",
		}, []string{"flag"}),
		recordsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mediaferry_records_total",
			Help: "Records in the store.",
		}),
		bytesSaved: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mediaferry_compression_bytes_saved",
			Help: "Bytes saved by compression across all records.",
		}),
		runSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mediaferry_last_run_success",
			Help: "1 when the last run finished without failures.",
		}),
		runTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mediaferry_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mediaferry_last_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}
}

// ObserveStage records a stage batch result.
func (r *Recorder) ObserveStage(result stageexec.BatchResult) {
	name := string(result.Stage)
	r.stageFiles.WithLabelValues(name, "total").Set(float64(result.Total))
	r.stageFiles.WithLabelValues(name, "successful").Set(float64(result.Successful))
	r.stageFiles.WithLabelValues(name, "failed").Set(float64(result.Failed))
	r.stageFiles.WithLabelValues(name, "skipped").Set(float64(result.Skipped))
	r.stageFiles.WithLabelValues(name, "unchanged").Set(float64(result.Unchanged))
	r.stageFiles.WithLabelValues(name, "pending").Set(float64(result.Pending))
	r.stageDuration.WithLabelValues(name).Set(result.Duration.Seconds())
	r.stageSuccess.WithLabelValues(name).Set(boolGauge(result.OK()))
}

// ObserveStats records aggregate store counts.
func (r *Recorder) ObserveStats(stats records.Stats) {
	r.recordsTotal.Set(float64(stats.Total))
	r.recordFlags.WithLabelValues("replica_confirmed").Set(float64(stats.ReplicaConfirmed))
	r.recordFlags.WithLabelValues("replica_pending").Set(float64(stats.ReplicaPending))
	r.recordFlags.WithLabelValues("archive_confirmed").Set(float64(stats.ArchiveConfirmed))
	r.recordFlags.WithLabelValues("compressed").Set(float64(stats.Compressed))
	r.recordFlags.WithLabelValues("ready_for_delete").Set(float64(stats.ReadyForDelete))
	r.recordFlags.WithLabelValues("deleted_at_origin").Set(float64(stats.DeletedAtOrigin))
	r.recordFlags.WithLabelValues("with_errors").Set(float64(stats.WithErrors))
	r.bytesSaved.Set(float64(stats.BytesSaved))
}

// ObserveRun records the overall outcome of a run.
func (r *Recorder) ObserveRun(success bool, finished time.Time, duration time.Duration) {
	r.runSuccess.Set(boolGauge(success))
	r.runTimestamp.Set(float64(finished.Unix()))
	r.runDuration.Set(duration.Seconds())
}

// WriteTextfile writes every gauge to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
