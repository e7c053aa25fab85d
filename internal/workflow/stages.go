package workflow

import (
	"log/slog"

	"mediaferry/internal/archive"
	"mediaferry/internal/compression"
	"mediaferry/internal/config"
	"mediaferry/internal/deleteprep"
	"mediaferry/internal/ingest"
	"mediaferry/internal/purge"
	"mediaferry/internal/records"
	"mediaferry/internal/replica"
	"mediaferry/internal/services/icloudpd"
	"mediaferry/internal/services/syncthing"
	"mediaferry/internal/services/transcode"
)

// DefaultStages wires every stage to its production collaborators.
// Compression is left out when disabled, replica confirmation when no
// Syncthing API is configured, and origin album staging when no album command
// is set.
func DefaultStages(cfg *config.Config, store *records.Store, logger *slog.Logger) StageSet {
	origin := icloudpd.New(cfg)

	var confirmer replica.Confirmer
	if cfg.ReplicaConfirmationEnabled() {
		confirmer = syncthing.NewFromConfig(cfg)
	}
	var stager deleteprep.Stager
	if origin.CanStage() {
		stager = origin
	}
	var remover purge.Remover
	if origin.CanDelete() {
		remover = origin
	}

	set := StageSet{
		Download:      ingest.New(cfg, store, origin, logger),
		Replica:       replica.New(cfg, confirmer, logger),
		Archive:       archive.New(cfg, logger),
		PrepareDelete: deleteprep.New(cfg, stager, logger),
		DeleteOrigin:  purge.New(cfg, remover, logger),
	}
	if cfg.Compression.Enabled {
		set.Compress = compression.New(cfg, transcode.NewRouter(cfg, logger), logger)
	}
	return set
}
