package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mediaferry/internal/logging"
	"mediaferry/internal/services"
	"mediaferry/internal/services/drapto"
)

// Drapto re-encodes video to AV1 in an MKV container. Drapto chooses its own
// quality from the source resolution, so the tier CRF is only logged.
type Drapto struct {
	encoder drapto.Encoder
	logger  *slog.Logger
}

// NewDrapto wraps a Drapto encoder.
func NewDrapto(encoder drapto.Encoder, logger *slog.Logger) *Drapto {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Drapto{encoder: encoder, logger: logger}
}

// Compress implements Transcoder. The result path ends in .mkv regardless of
// the requested destination extension.
func (d *Drapto) Compress(ctx context.Context, src, dst string, q Quality) (Result, error) {
	outDir := filepath.Dir(dst)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}

	lastPercent := -1.0
	path, err := d.encoder.Encode(ctx, src, outDir, func(p drapto.Progress) {
		switch {
		case p.Warning != "":
			d.logger.Warn("drapto warning", logging.String("warning", p.Warning))
		case p.Failure != "":
			d.logger.Error("drapto error", logging.String("error", p.Failure))
		case p.Percent-lastPercent >= 25 || p.Percent >= 100:
			lastPercent = p.Percent
			d.logger.Debug("drapto progress",
				logging.String("stage", p.Stage),
				logging.Float64("percent", p.Percent),
				logging.Int("requested_crf", q.VideoCRF),
			)
		}
	})
	if err != nil {
		_ = os.Remove(drapto.OutputPath(src, outDir))
		return Result{}, services.Wrap(services.ErrExternalTool, "compress", "drapto", filepath.Base(src), err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "compress", "drapto", "output missing", err)
	}
	return Result{Path: path, Size: info.Size()}, nil
}

var _ Transcoder = (*Drapto)(nil)
