package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeOrigin(); err != nil {
		return err
	}
	c.normalizeReplica()
	c.normalizeArchive()
	c.normalizeCompression()
	c.normalizeNotifications()
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.download_dir", &c.Paths.DownloadDir, defaultDownloadDir},
		{"paths.replica_dir", &c.Paths.ReplicaDir, defaultReplicaDir},
		{"paths.archive_dir", &c.Paths.ArchiveDir, defaultArchiveDir},
		{"paths.delete_pending_dir", &c.Paths.DeletePendingDir, defaultDeletePendingDir},
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeOrigin() error {
	c.Origin.Command = strings.TrimSpace(c.Origin.Command)
	if c.Origin.Command == "" {
		c.Origin.Command = defaultOriginCommand
	}
	c.Origin.Username = strings.TrimSpace(c.Origin.Username)
	if c.Origin.Username == "" {
		if value, ok := os.LookupEnv("ICLOUD_USERNAME"); ok {
			c.Origin.Username = strings.TrimSpace(value)
		}
	}
	c.Origin.Album = strings.TrimSpace(c.Origin.Album)
	if c.Origin.Album == "" {
		c.Origin.Album = defaultOriginAlbum
	}
	if strings.TrimSpace(c.Origin.CookieDir) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Origin.CookieDir))
		if err != nil {
			return fmt.Errorf("origin.cookie_dir: %w", err)
		}
		c.Origin.CookieDir = expanded
	}
	c.Origin.AlbumCommand = trimArgs(c.Origin.AlbumCommand)
	c.Origin.DeleteCommand = trimArgs(c.Origin.DeleteCommand)
	return nil
}

func (c *Config) normalizeReplica() {
	c.Replica.APIURL = strings.TrimRight(strings.TrimSpace(c.Replica.APIURL), "/")
	if c.Replica.APIKey == "" {
		if value, ok := os.LookupEnv("SYNCTHING_API_KEY"); ok {
			c.Replica.APIKey = strings.TrimSpace(value)
		}
	}
	c.Replica.FolderID = strings.TrimSpace(c.Replica.FolderID)
	if c.Replica.FolderID == "" {
		c.Replica.FolderID = defaultSyncthingFolderID
	}
}

func (c *Config) normalizeArchive() {
	c.Archive.Layout = strings.ToLower(strings.TrimSpace(c.Archive.Layout))
	if c.Archive.Layout == "" {
		c.Archive.Layout = defaultArchiveLayout
	}
}

func (c *Config) normalizeCompression() {
	c.Compression.VideoBackend = strings.ToLower(strings.TrimSpace(c.Compression.VideoBackend))
	if c.Compression.VideoBackend == "" {
		c.Compression.VideoBackend = defaultVideoBackend
	}
	c.Compression.FFmpegBinary = strings.TrimSpace(c.Compression.FFmpegBinary)
	if c.Compression.FFmpegBinary == "" {
		c.Compression.FFmpegBinary = defaultFFmpegBinary
	}
	if len(c.Compression.Tiers) == 0 {
		c.Compression.Tiers = defaultTiers()
	}
	// Bounded tiers ascending, the open-ended tier last.
	sort.SliceStable(c.Compression.Tiers, func(i, j int) bool {
		a, b := c.Compression.Tiers[i].MaxAgeYears, c.Compression.Tiers[j].MaxAgeYears
		if a <= 0 {
			return false
		}
		if b <= 0 {
			return true
		}
		return a < b
	})
}

func (c *Config) normalizeNotifications() {
	c.Notifications.Provider = strings.ToLower(strings.TrimSpace(c.Notifications.Provider))
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.TelegramToken == "" {
		if value, ok := os.LookupEnv("TELEGRAM_BOT_TOKEN"); ok {
			c.Notifications.TelegramToken = strings.TrimSpace(value)
		}
	}
	if c.Notifications.TelegramChatID == "" {
		if value, ok := os.LookupEnv("TELEGRAM_CHAT_ID"); ok {
			c.Notifications.TelegramChatID = strings.TrimSpace(value)
		}
	}
	if c.Notifications.Provider == "" {
		switch {
		case c.Notifications.NtfyTopic != "":
			c.Notifications.Provider = NotifyProviderNtfy
		case c.Notifications.TelegramToken != "" && c.Notifications.TelegramChatID != "":
			c.Notifications.Provider = NotifyProviderTelegram
		}
	}
}

func (c *Config) normalizeMetrics() error {
	path := strings.TrimSpace(c.Metrics.TextfilePath)
	if path == "" {
		c.Metrics.TextfilePath = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	c.Metrics.TextfilePath = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
