package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mediaferry/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Replica confirmation via Syncthing is disabled and the retry delay is zero so
// stage tests run without network access or sleeps.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.ReplicaDir = filepath.Join(base, "replica")
	cfgVal.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfgVal.Paths.DeletePendingDir = filepath.Join(base, "delete_pending")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Replica.APIURL = ""
	cfgVal.Retry.DelaySeconds = 0
	cfgVal.Workflow.Snapshots = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRetry overrides the per-file retry policy.
func WithRetry(attempts, delaySeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.Attempts = attempts
		b.cfg.Retry.DelaySeconds = delaySeconds
	}
}

// WithSyncthing points replica confirmation at url (typically an httptest server).
func WithSyncthing(url, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Replica.APIURL = url
		b.cfg.Replica.APIKey = apiKey
	}
}

// WithCompression toggles the compression stage.
func WithCompression(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Compression.Enabled = enabled
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
