package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directories the pipeline reads from and writes to.
type Paths struct {
	StateDir         string `toml:"state_dir"`
	LogDir           string `toml:"log_dir"`
	DownloadDir      string `toml:"download_dir"`
	ReplicaDir       string `toml:"replica_dir"`
	ArchiveDir       string `toml:"archive_dir"`
	DeletePendingDir string `toml:"delete_pending_dir"`
	WorkDir          string `toml:"work_dir"`
}

// Origin contains configuration for the cloud photo service command-line tool.
type Origin struct {
	Command        string   `toml:"command"`
	Username       string   `toml:"username"`
	CookieDir      string   `toml:"cookie_dir"`
	RecentDays     int      `toml:"recent_days"`
	Album          string   `toml:"album"`
	AlbumCommand   []string `toml:"album_command"`
	DeleteCommand  []string `toml:"delete_command"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Replica contains configuration for the Syncthing-shared replica folder.
type Replica struct {
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	FolderID       string `toml:"folder_id"`
	RequestTimeout int    `toml:"request_timeout"`
	TriggerScan    bool   `toml:"trigger_scan"`
}

// Archive contains configuration for the NAS archive layout.
type Archive struct {
	Layout string `toml:"layout"`
}

// CompressionTier maps a media age bracket to lossy quality settings.
// MaxAgeYears of zero marks the open-ended final tier.
type CompressionTier struct {
	MaxAgeYears  float64 `toml:"max_age_years"`
	ImageQuality int     `toml:"image_quality"`
	VideoCRF     int     `toml:"video_crf"`
}

// Compression contains configuration for the age-based compression stage.
type Compression struct {
	Enabled         bool              `toml:"enabled"`
	MinSavingsRatio float64           `toml:"min_savings_ratio"`
	VideoBackend    string            `toml:"video_backend"`
	FFmpegBinary    string            `toml:"ffmpeg_binary"`
	TimeoutSeconds  int               `toml:"timeout_seconds"`
	Tiers           []CompressionTier `toml:"tiers"`
}

// Retry contains the bounded per-file retry policy.
type Retry struct {
	Attempts     int `toml:"attempts"`
	DelaySeconds int `toml:"delay_seconds"`
}

// Workflow contains orchestration behaviour.
type Workflow struct {
	StopOnFailure   bool `toml:"stop_on_failure"`
	Workers         int  `toml:"workers"`
	BackupBeforeRun bool `toml:"backup_before_run"`
	Snapshots       bool `toml:"snapshots"`
}

// Notifications contains configuration for run notifications.
type Notifications struct {
	Provider       string `toml:"provider"`
	NtfyTopic      string `toml:"ntfy_topic"`
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`
	RequestTimeout int    `toml:"request_timeout"`
	RunStart       bool   `toml:"run_start"`
	StageComplete  bool   `toml:"stage_complete"`
	RunComplete    bool   `toml:"run_complete"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Config encapsulates all configuration values for mediaferry.
//
// Configuration sections by subsystem:
//   - Paths: state, log, download, replica, archive and staging directories
//   - Origin: cloud photo tool invocation and delete-pending album
//   - Replica: Syncthing REST API used to confirm replica sync
//   - Archive: NAS archive layout
//   - Compression: age tiers, savings threshold and video backend
//   - Retry: per-file bounded retry policy
//   - Workflow: stop-on-failure, parallelism, backups and snapshots
//   - Notifications: ntfy or Telegram delivery
//   - Logging: log format and level
//   - Metrics: Prometheus textfile output
type Config struct {
	Paths         Paths         `toml:"paths"`
	Origin        Origin        `toml:"origin"`
	Replica       Replica       `toml:"replica"`
	Archive       Archive       `toml:"archive"`
	Compression   Compression   `toml:"compression"`
	Retry         Retry         `toml:"retry"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediaferry.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories the pipeline owns.
// ReplicaDir and ArchiveDir are created on a best-effort basis because they
// usually live on mounts that may be temporarily unavailable; the stages that
// use them report the failure per file.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.DownloadDir, c.Paths.DeletePendingDir, c.Paths.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range []string{c.Paths.ReplicaDir, c.Paths.ArchiveDir} {
		if strings.TrimSpace(dir) != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}
	return nil
}

// DatabasePath returns the location of the record store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "mediaferry.db")
}

// LockPath returns the location of the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "mediaferry.lock")
}

// ReplicaConfirmationEnabled reports whether a Syncthing API is configured.
// Without it a verified copy into the replica folder counts as confirmation.
func (c *Config) ReplicaConfirmationEnabled() bool {
	return strings.TrimSpace(c.Replica.APIURL) != ""
}

// TierFor returns the compression tier for media of the given age in years.
func (c *Config) TierFor(ageYears float64) CompressionTier {
	tiers := c.Compression.Tiers
	for _, tier := range tiers {
		if tier.MaxAgeYears <= 0 || ageYears < tier.MaxAgeYears {
			return tier
		}
	}
	if len(tiers) == 0 {
		return defaultTiers()[len(defaultTiers())-1]
	}
	return tiers[len(tiers)-1]
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
