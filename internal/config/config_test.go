package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"mediaferry/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SYNCTHING_API_KEY", "from-env")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "mediaferry")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "mediaferry.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Replica.APIKey != "from-env" {
		t.Fatalf("expected Syncthing key from env, got %q", cfg.Replica.APIKey)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.DelaySeconds != 5 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if !cfg.Workflow.StopOnFailure {
		t.Fatal("expected stop_on_failure by default")
	}
	if cfg.Compression.MinSavingsRatio != 0.10 {
		t.Fatalf("unexpected min savings ratio: %v", cfg.Compression.MinSavingsRatio)
	}
	if cfg.Notifications.Provider != "" {
		t.Fatalf("expected notifications disabled by default, got %q", cfg.Notifications.Provider)
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"archive_dir": "~/nas",
		},
		"retry": map[string]any{
			"attempts":      5,
			"delay_seconds": 1,
		},
		"notifications": map[string]any{
			"ntfy_topic": "https://ntfy.example/photos",
		},
		"logging": map[string]any{
			"format": "JSON",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected explicit config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.ArchiveDir != filepath.Join(tempHome, "nas") {
		t.Fatalf("unexpected archive dir: %q", cfg.Paths.ArchiveDir)
	}
	if cfg.Retry.Attempts != 5 || cfg.Retry.DelaySeconds != 1 {
		t.Fatalf("unexpected retry policy: %+v", cfg.Retry)
	}
	if cfg.Notifications.Provider != config.NotifyProviderNtfy {
		t.Fatalf("expected ntfy provider inferred from topic, got %q", cfg.Notifications.Provider)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[retry]\nattemps = 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero attempts", func(c *config.Config) { c.Retry.Attempts = 0 }, "retry.attempts"},
		{"negative delay", func(c *config.Config) { c.Retry.DelaySeconds = -1 }, "retry.delay_seconds"},
		{"ratio too large", func(c *config.Config) { c.Compression.MinSavingsRatio = 1 }, "min_savings_ratio"},
		{"bad backend", func(c *config.Config) { c.Compression.VideoBackend = "handbrake" }, "video_backend"},
		{"bad quality", func(c *config.Config) { c.Compression.Tiers[0].ImageQuality = 0 }, "image_quality"},
		{"bad layout", func(c *config.Config) { c.Archive.Layout = "daily" }, "archive.layout"},
		{"telegram without token", func(c *config.Config) {
			c.Notifications.Provider = config.NotifyProviderTelegram
			c.Notifications.TelegramChatID = "1"
		}, "telegram_token"},
		{"workers", func(c *config.Config) { c.Workflow.Workers = 0 }, "workflow.workers"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestTierForSelectsByAge(t *testing.T) {
	cfg := config.Default()
	tests := []struct {
		age     float64
		quality int
		crf     int
	}{
		{0.2, 85, 26},
		{1.0, 75, 28},
		{2.9, 75, 28},
		{3.0, 65, 30},
		{12, 65, 30},
	}
	for _, tc := range tests {
		tier := cfg.TierFor(tc.age)
		if tier.ImageQuality != tc.quality || tier.VideoCRF != tc.crf {
			t.Fatalf("age %.1f: got %+v", tc.age, tier)
		}
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if len(cfg.Compression.Tiers) != 3 {
		t.Fatalf("expected three compression tiers, got %d", len(cfg.Compression.Tiers))
	}
}
