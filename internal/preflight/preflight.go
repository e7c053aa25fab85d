package preflight

import (
	"context"

	"mediaferry/internal/config"
	"mediaferry/internal/services/syncthing"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Failed reports whether any required check did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}

// Directories checks every directory the configured pipeline writes to.
func Directories(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("Replica directory", cfg.Paths.ReplicaDir),
		CheckDirectoryAccess("Archive directory", cfg.Paths.ArchiveDir),
		CheckDirectoryAccess("Delete pending directory", cfg.Paths.DeletePendingDir),
	}
	if cfg.Compression.Enabled {
		results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	}
	return results
}

// RunAll executes every applicable check for the given config. Checks are
// only run when the corresponding feature is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := Directories(cfg)
	results = append(results, CheckDatabase(ctx, cfg))
	results = append(results, CheckBinaries(cfg)...)

	if cfg.ReplicaConfirmationEnabled() {
		results = append(results, CheckSyncthing(ctx, syncthing.NewFromConfig(cfg)))
	}
	return results
}
