package config

const (
	defaultConfigPath           = "~/.config/mediaferry/config.toml"
	defaultStateDir             = "~/.local/share/mediaferry"
	defaultLogDir               = "~/.local/share/mediaferry/logs"
	defaultDownloadDir          = "~/.local/share/mediaferry/downloads"
	defaultReplicaDir           = "~/Sync/Photos"
	defaultArchiveDir           = "/mnt/nas/photos"
	defaultDeletePendingDir     = "~/.local/share/mediaferry/delete_pending"
	defaultWorkDir              = "~/.local/share/mediaferry/work"
	defaultOriginCommand        = "icloudpd"
	defaultOriginAlbum          = "Delete Pending"
	defaultOriginTimeoutSeconds = 3600
	defaultSyncthingURL         = "http://127.0.0.1:8384"
	defaultSyncthingFolderID    = "default"
	defaultReplicaTimeout       = 10
	defaultArchiveLayout        = ArchiveLayoutYearMonth
	defaultMinSavingsRatio      = 0.10
	defaultVideoBackend         = VideoBackendFFmpeg
	defaultFFmpegBinary         = "ffmpeg"
	defaultCompressionTimeout   = 1800
	defaultRetryAttempts        = 3
	defaultRetryDelaySeconds    = 5
	defaultWorkers              = 1
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Archive layouts.
const (
	ArchiveLayoutYearMonth = "year_month"
	ArchiveLayoutFlat      = "flat"
)

// Video compression backends.
const (
	VideoBackendFFmpeg = "ffmpeg"
	VideoBackendDrapto = "drapto"
)

// Notification providers. An empty provider disables notifications.
const (
	NotifyProviderNtfy     = "ntfy"
	NotifyProviderTelegram = "telegram"
)

func defaultTiers() []CompressionTier {
	return []CompressionTier{
		{MaxAgeYears: 1, ImageQuality: 85, VideoCRF: 26},
		{MaxAgeYears: 3, ImageQuality: 75, VideoCRF: 28},
		{MaxAgeYears: 0, ImageQuality: 65, VideoCRF: 30},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:         defaultStateDir,
			LogDir:           defaultLogDir,
			DownloadDir:      defaultDownloadDir,
			ReplicaDir:       defaultReplicaDir,
			ArchiveDir:       defaultArchiveDir,
			DeletePendingDir: defaultDeletePendingDir,
			WorkDir:          defaultWorkDir,
		},
		Origin: Origin{
			Command:        defaultOriginCommand,
			Album:          defaultOriginAlbum,
			TimeoutSeconds: defaultOriginTimeoutSeconds,
		},
		Replica: Replica{
			APIURL:         defaultSyncthingURL,
			FolderID:       defaultSyncthingFolderID,
			RequestTimeout: defaultReplicaTimeout,
			TriggerScan:    true,
		},
		Archive: Archive{
			Layout: defaultArchiveLayout,
		},
		Compression: Compression{
			Enabled:         true,
			MinSavingsRatio: defaultMinSavingsRatio,
			VideoBackend:    defaultVideoBackend,
			FFmpegBinary:    defaultFFmpegBinary,
			TimeoutSeconds:  defaultCompressionTimeout,
			Tiers:           defaultTiers(),
		},
		Retry: Retry{
			Attempts:     defaultRetryAttempts,
			DelaySeconds: defaultRetryDelaySeconds,
		},
		Workflow: Workflow{
			StopOnFailure: true,
			Workers:       defaultWorkers,
			Snapshots:     true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunStart:       true,
			StageComplete:  true,
			RunComplete:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
