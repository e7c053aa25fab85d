// Package compression re-encodes fully replicated media at an age-dependent
// quality and replaces the local file when the savings are worth it.
package compression

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"mediaferry/internal/config"
	"mediaferry/internal/fileutil"
	"mediaferry/internal/gate"
	"mediaferry/internal/logging"
	"mediaferry/internal/records"
	"mediaferry/internal/services/transcode"
	"mediaferry/internal/stage"
	"mediaferry/internal/workdir"
)

// Executor implements the compression stage.
type Executor struct {
	cfg        *config.Config
	transcoder transcode.Transcoder
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithClock overrides the clock used to compute media age.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs the compression executor.
func New(cfg *config.Config, transcoder transcode.Transcoder, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		cfg:        cfg,
		transcoder: transcoder,
		logger:     logging.NewComponentLogger(logger, "compression"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Name() stage.ID       { return stage.Compress }
func (e *Executor) Gate() gate.Predicate { return gate.Compress() }
func (e *Executor) Flag() records.Flag   { return records.FlagCompressed }

// staleScratchAge bounds how long an encode output may sit in the work
// directory before it is treated as abandoned.
const staleScratchAge = 24 * time.Hour

// Prepare makes sure the scratch directory exists and sweeps leftovers from
// interrupted runs.
func (e *Executor) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(e.cfg.Paths.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	workdir.CleanStale(ctx, e.cfg.Paths.WorkDir, staleScratchAge, e.now(), e.logger)
	return nil
}

// Execute encodes the record's file into the work directory and swaps it into
// place. Files whose savings fall below the configured ratio are left alone
// and stay eligible until they are staged for deletion; unsupported media
// types are skipped the same way. When the container changes, the original is
// reported in Outcome.Replaced and left on disk for the runner to remove.
func (e *Executor) Execute(ctx context.Context, rec *records.Record) (stage.Outcome, error) {
	original, err := stage.RequireLocalFile(rec)
	if err != nil {
		return stage.Outcome{}, err
	}
	logger := logging.WithContext(ctx, e.logger)

	// A file smaller than its recorded initial size was swapped in by a run
	// that stopped before committing. Commit it instead of encoding it twice.
	if rec.InitialSize > original && savingsRatio(rec.InitialSize, original) >= e.cfg.Compression.MinSavingsRatio {
		logger.Info("compressed file already in place",
			logging.String(logging.FieldEventType, "file_compressed_resumed"),
			logging.String("before", humanize.IBytes(uint64(rec.InitialSize))),
			logging.String("after", humanize.IBytes(uint64(original))),
		)
		return stage.Outcome{
			Status:      stage.StatusDone,
			Path:        rec.LocalPath,
			InitialSize: rec.InitialSize,
			CurrentSize: original,
		}, nil
	}

	kind := transcode.KindOf(rec.LocalPath)
	if kind == transcode.KindUnsupported {
		return stage.Unchanged(fmt.Sprintf("unsupported media type %q", filepath.Ext(rec.LocalPath))), nil
	}

	tier := e.cfg.TierFor(rec.AgeYears(e.now()))
	quality := transcode.Quality{ImageQuality: tier.ImageQuality, VideoCRF: tier.VideoCRF}
	scratch := filepath.Join(e.cfg.Paths.WorkDir, e.scratchPrefix(rec)+filepath.Base(rec.LocalPath))

	logger.Debug("compressing file",
		logging.String("kind", kind.String()),
		logging.Int("image_quality", quality.ImageQuality),
		logging.Int("video_crf", quality.VideoCRF),
	)

	result, err := e.transcoder.Compress(ctx, rec.LocalPath, scratch, quality)
	if err != nil {
		removeScratch(scratch, result.Path)
		return stage.Outcome{}, fmt.Errorf("compress %s: %w", rec.Filename, err)
	}
	if result.Path == "" {
		result.Path = scratch
	}
	if result.Size <= 0 {
		info, statErr := os.Stat(result.Path)
		if statErr != nil {
			removeScratch(scratch, result.Path)
			return stage.Outcome{}, fmt.Errorf("stat compressed output: %w", statErr)
		}
		result.Size = info.Size()
	}

	if ratio := savingsRatio(original, result.Size); ratio < e.cfg.Compression.MinSavingsRatio {
		removeScratch(scratch, result.Path)
		return stage.Unchanged(fmt.Sprintf("savings %.1f%% below threshold", ratio*100)), nil
	}

	finalName := strings.TrimPrefix(filepath.Base(result.Path), e.scratchPrefix(rec))
	final := filepath.Join(filepath.Dir(rec.LocalPath), finalName)
	if err := fileutil.Move(result.Path, final); err != nil {
		removeScratch(scratch, result.Path)
		return stage.Outcome{}, fmt.Errorf("replace original: %w", err)
	}

	logger.Info("file compressed",
		logging.String(logging.FieldEventType, "file_compressed"),
		logging.String("before", humanize.IBytes(uint64(original))),
		logging.String("after", humanize.IBytes(uint64(result.Size))),
	)
	outcome := stage.Outcome{
		Status:      stage.StatusDone,
		Path:        final,
		InitialSize: original,
		CurrentSize: result.Size,
	}
	if final != rec.LocalPath {
		outcome.Replaced = rec.LocalPath
	}
	return outcome, nil
}

// HealthCheck verifies the work directory and, for the ffmpeg backend, that
// the binary is on PATH.
func (e *Executor) HealthCheck(context.Context) stage.Health {
	if e.transcoder == nil {
		return stage.Unhealthy(stage.Compress, "transcoder not configured")
	}
	if info, err := os.Stat(e.cfg.Paths.WorkDir); err != nil || !info.IsDir() {
		return stage.Unhealthy(stage.Compress, fmt.Sprintf("work directory %s unavailable", e.cfg.Paths.WorkDir))
	}
	if e.cfg.Compression.VideoBackend == config.VideoBackendFFmpeg {
		if _, err := exec.LookPath(e.cfg.Compression.FFmpegBinary); err != nil {
			return stage.Unhealthy(stage.Compress, fmt.Sprintf("%s not found", e.cfg.Compression.FFmpegBinary))
		}
	}
	return stage.Healthy(stage.Compress)
}

func (e *Executor) scratchPrefix(rec *records.Record) string {
	return strconv.FormatInt(rec.ID, 10) + "-"
}

func savingsRatio(before, after int64) float64 {
	if before <= 0 {
		return 0
	}
	return 1 - float64(after)/float64(before)
}

func removeScratch(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}

var _ stage.Executor = (*Executor)(nil)
