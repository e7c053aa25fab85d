package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// ErrSizeMismatch is returned when a copy does not match its source size.
var ErrSizeMismatch = errors.New("copy size mismatch")

const partialSuffix = ".partial"

// CopyFileVerified streams src to dst with SHA256 + size integrity verification.
// The copy is written next to dst and renamed into place, so dst is either
// absent or complete. The partial file is removed on any failure.
func CopyFileVerified(src, dst string) (int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create destination directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	partial := dst + partialSuffix
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	cleanup := func() {
		_ = out.Close()
		_ = os.Remove(partial)
	}

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := io.Copy(multi, tee)
	if err != nil {
		cleanup()
		return 0, err
	}
	if err := out.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("sync destination: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(partial)
		return 0, err
	}

	if written != srcSize {
		_ = os.Remove(partial)
		return 0, fmt.Errorf("%w: source %d bytes, copied %d bytes", ErrSizeMismatch, srcSize, written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(partial)
		return 0, fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	if info, err := os.Stat(partial); err != nil || info.Size() != srcSize {
		_ = os.Remove(partial)
		if err != nil {
			return 0, fmt.Errorf("stat destination: %w", err)
		}
		return 0, fmt.Errorf("%w: source %d bytes, destination %d bytes", ErrSizeMismatch, srcSize, info.Size())
	}
	if err := os.Rename(partial, dst); err != nil {
		_ = os.Remove(partial)
		return 0, fmt.Errorf("finalize copy: %w", err)
	}
	return written, nil
}

// SameSize reports whether dst exists and has the same size as src. It is the
// verify-before-skip check used by the copy stages.
func SameSize(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, fmt.Errorf("stat source: %w", err)
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat destination: %w", err)
	}
	if dstInfo.IsDir() {
		return false, fmt.Errorf("destination %s is a directory", dst)
	}
	return srcInfo.Size() == dstInfo.Size(), nil
}

// CopyIfDifferent copies src to dst unless dst already holds a file of the
// same size. It reports whether a copy happened.
func CopyIfDifferent(src, dst string) (bool, error) {
	same, err := SameSize(src, dst)
	if err != nil {
		return false, err
	}
	if same {
		return false, nil
	}
	if _, err := CopyFileVerified(src, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Move renames src to dst, falling back to a verified copy and delete when the
// paths are on different filesystems.
func Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if _, err := CopyFileVerified(src, dst); err != nil {
		return fmt.Errorf("cross-device move: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after cross-device move: %w", err)
	}
	return nil
}

// RemoveIfExists deletes path and treats an already absent file as success.
// It reports whether a file was removed.
func RemoveIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
