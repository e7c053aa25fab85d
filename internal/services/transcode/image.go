package transcode

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"mediaferry/internal/services"
)

// Image re-encodes JPEG files at the tier quality and PNG files at the best
// lossless compression level.
type Image struct{}

// NewImage constructs the image backend.
func NewImage() *Image {
	return &Image{}
}

// Compress implements Transcoder.
func (i *Image) Compress(ctx context.Context, src, dst string, q Quality) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	in, err := os.Open(src)
	if err != nil {
		return Result{}, fmt.Errorf("open image: %w", err)
	}
	defer in.Close()

	img, format, err := image.Decode(in)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "compress", "decode image", filepath.Base(src), err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return Result{}, fmt.Errorf("create output: %w", err)
	}

	switch format {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(out, img)
	default:
		quality := q.ImageQuality
		if quality < 1 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: quality})
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return Result{}, services.Wrap(services.ErrExternalTool, "compress", "encode image", filepath.Base(src), err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return Result{}, fmt.Errorf("stat output: %w", err)
	}
	return Result{Path: dst, Size: info.Size()}, nil
}

var _ Transcoder = (*Image)(nil)
