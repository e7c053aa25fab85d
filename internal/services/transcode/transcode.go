package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"mediaferry/internal/config"
	"mediaferry/internal/logging"
	"mediaferry/internal/services"
	"mediaferry/internal/services/drapto"
)

// Kind classifies media by extension.
type Kind int

const (
	KindUnsupported Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unsupported"
	}
}

var kinds = map[string]Kind{
	"jpg":  KindImage,
	"jpeg": KindImage,
	"png":  KindImage,
	"mp4":  KindVideo,
	"mov":  KindVideo,
	"avi":  KindVideo,
	"mkv":  KindVideo,
	"m4v":  KindVideo,
}

// KindOf returns the media kind for a filename or extension.
func KindOf(name string) Kind {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(name, "."))
	}
	return kinds[ext]
}

// Quality carries the tier settings for one file.
type Quality struct {
	ImageQuality int
	VideoCRF     int
}

// Result describes a finished encode.
type Result struct {
	// Path is the produced file. It may differ from the requested destination
	// when the backend picks its own container.
	Path string
	Size int64
}

// Transcoder writes a re-encoded copy of src at or near dst.
type Transcoder interface {
	Compress(ctx context.Context, src, dst string, q Quality) (Result, error)
}

// Router dispatches to the image or video backend by extension.
type Router struct {
	Image Transcoder
	Video Transcoder
}

// NewRouter builds the configured backends.
func NewRouter(cfg *config.Config, logger *slog.Logger) *Router {
	timeout := time.Duration(cfg.Compression.TimeoutSeconds) * time.Second
	var video Transcoder
	switch cfg.Compression.VideoBackend {
	case config.VideoBackendDrapto:
		video = NewDrapto(drapto.NewLibrary(), logging.NewComponentLogger(logger, "drapto"))
	default:
		video = NewFFmpeg(cfg.Compression.FFmpegBinary, timeout)
	}
	return &Router{Image: NewImage(), Video: video}
}

// Compress implements Transcoder.
func (r *Router) Compress(ctx context.Context, src, dst string, q Quality) (Result, error) {
	switch KindOf(src) {
	case KindImage:
		return r.Image.Compress(ctx, src, dst, q)
	case KindVideo:
		return r.Video.Compress(ctx, src, dst, q)
	default:
		return Result{}, services.Wrap(services.ErrValidation, "compress", "route",
			fmt.Sprintf("unsupported media type %q", filepath.Ext(src)), nil)
	}
}

var _ Transcoder = (*Router)(nil)
