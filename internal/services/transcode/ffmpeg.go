package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mediaferry/internal/services"
)

var commandContext = exec.CommandContext

// FFmpeg re-encodes video to H.264 at the tier CRF.
type FFmpeg struct {
	binary  string
	timeout time.Duration
}

// NewFFmpeg constructs the ffmpeg backend. A zero timeout disables the limit.
func NewFFmpeg(binary string, timeout time.Duration) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary, timeout: timeout}
}

// Args returns the ffmpeg argument list for one encode.
func (f *FFmpeg) Args(src, dst string, q Quality) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-map_metadata", "0",
		"-vcodec", "libx264",
		"-crf", strconv.Itoa(q.VideoCRF),
		"-preset", "medium",
		"-acodec", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		dst,
	}
}

// Compress implements Transcoder.
func (f *FFmpeg) Compress(ctx context.Context, src, dst string, q Quality) (Result, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}

	cmd := commandContext(ctx, f.binary, f.Args(src, dst, q)...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(dst)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, services.Wrap(services.ErrTimeout, "compress", "ffmpeg",
				fmt.Sprintf("encode exceeded %s", f.timeout), err)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "ffmpeg exited with an error"
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "compress", "ffmpeg", detail, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "compress", "ffmpeg", "output missing", err)
	}
	return Result{Path: dst, Size: info.Size()}, nil
}

var _ Transcoder = (*FFmpeg)(nil)
