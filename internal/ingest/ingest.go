// Package ingest implements the download stage: it asks the origin client to
// fetch new media into the download directory and registers every media file
// found there in the record store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediaferry/internal/config"
	"mediaferry/internal/logging"
	"mediaferry/internal/records"
	"mediaferry/internal/services"
	"mediaferry/internal/stage"
	"mediaferry/internal/stageexec"
)

// Downloader fetches new media from the origin into the download directory.
type Downloader interface {
	Download(ctx context.Context) error
}

var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".heic": true, ".heif": true,
	".gif": true, ".webp": true, ".dng": true, ".tif": true, ".tiff": true,
	".mov": true, ".mp4": true, ".m4v": true, ".avi": true, ".mkv": true,
}

// Stage registers downloaded media.
type Stage struct {
	cfg        *config.Config
	store      *records.Store
	downloader Downloader
	logger     *slog.Logger
}

// New constructs the download stage. A nil downloader only scans the
// download directory.
func New(cfg *config.Config, store *records.Store, downloader Downloader, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:        cfg,
		store:      store,
		downloader: downloader,
		logger:     logging.NewComponentLogger(logger, "ingest"),
	}
}

// Name implements the orchestrator step contract.
func (s *Stage) Name() stage.ID { return stage.Download }

// HealthCheck verifies the download directory and the origin client.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	info, err := os.Stat(s.cfg.Paths.DownloadDir)
	if err != nil || !info.IsDir() {
		return stage.Unhealthy(stage.Download, fmt.Sprintf("download directory %s unavailable", s.cfg.Paths.DownloadDir))
	}
	if s.downloader == nil {
		return stage.Unhealthy(stage.Download, "origin client not configured; scanning only")
	}
	return stage.Healthy(stage.Download)
}

// Run downloads new media and records every file not yet known. In dry-run
// mode nothing is downloaded or written; Total reports the files that would
// be registered.
func (s *Stage) Run(ctx context.Context, dryRun bool) (stageexec.BatchResult, error) {
	ctx = services.WithStage(ctx, string(stage.Download))
	logger := logging.WithContext(ctx, s.logger)
	started := time.Now()
	result := stageexec.BatchResult{Stage: stage.Download, DryRun: dryRun}
	defer func() { result.Duration = time.Since(started) }()

	if !dryRun && s.downloader != nil {
		logger.Info("origin download started", logging.String(logging.FieldEventType, "download_start"))
		if err := s.downloader.Download(ctx); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			logging.ErrorWithContext(logger, "origin download failed", "download_failed",
				logging.String(logging.FieldErrorHint, "check origin credentials and rerun; files already downloaded are still registered"),
				logging.String("error_kind", services.FailureKind(err)),
				logging.Error(err),
			)
			result.Failed++
			result.FirstError = err
		}
	}

	files, err := s.scan()
	if err != nil {
		return result, fmt.Errorf("scan download directory: %w", err)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		known, err := s.store.LocalPathKnown(ctx, file.path)
		if err != nil {
			return result, err
		}
		if known {
			continue
		}
		result.Total++
		if dryRun {
			continue
		}

		inserted, err := s.store.UpsertIfAbsent(ctx, records.NewRecord{
			Filename:    file.name,
			SourceID:    file.name,
			CreatedDate: file.modTime,
			LocalPath:   file.path,
			Size:        file.size,
		})
		switch {
		case errors.Is(err, records.ErrUnavailable):
			return result, err
		case err != nil:
			logger.Warn("could not register file", logging.String("path", file.path), logging.Error(err))
			result.Failed++
			if result.FirstError == nil {
				result.FirstError = err
			}
		case inserted:
			result.Successful++
			logger.Debug("registered file", logging.String("filename", file.name), logging.Int64("size", file.size))
		default:
			result.Skipped++
		}
	}

	if dryRun {
		logger.Info("dry run: files would be registered",
			logging.String(logging.FieldEventType, "stage_dry_run"),
			logging.Int("eligible", result.Total),
		)
	} else {
		logger.Info("ingest complete",
			logging.String(logging.FieldEventType, "download_complete"),
			logging.Int("registered", result.Successful),
			logging.Int("duplicates", result.Skipped),
			logging.Int("failed", result.Failed),
		)
	}
	return result, nil
}

type discovered struct {
	path    string
	name    string
	size    int64
	modTime time.Time
}

// scan walks the download directory. icloudpd sets each file's modification
// time to the capture date, which becomes the record's created_date.
func (s *Stage) scan() ([]discovered, error) {
	root := s.cfg.Paths.DownloadDir
	var out []discovered
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !mediaExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		out = append(out, discovered{path: path, name: name, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	return out, err
}
