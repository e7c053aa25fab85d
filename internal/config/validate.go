package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateReplica(); err != nil {
		return err
	}
	if err := c.validateCompression(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateArchive() error {
	switch c.Archive.Layout {
	case ArchiveLayoutYearMonth, ArchiveLayoutFlat:
		return nil
	default:
		return fmt.Errorf("archive.layout: unsupported value %q", c.Archive.Layout)
	}
}

func (c *Config) validateReplica() error {
	if !c.ReplicaConfirmationEnabled() {
		return nil
	}
	if !strings.HasPrefix(c.Replica.APIURL, "http://") && !strings.HasPrefix(c.Replica.APIURL, "https://") {
		return errors.New("replica.api_url must start with http:// or https://")
	}
	if c.Replica.RequestTimeout <= 0 {
		return errors.New("replica.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateCompression() error {
	if c.Compression.MinSavingsRatio < 0 || c.Compression.MinSavingsRatio >= 1 {
		return errors.New("compression.min_savings_ratio must be in [0, 1)")
	}
	switch c.Compression.VideoBackend {
	case VideoBackendFFmpeg, VideoBackendDrapto:
	default:
		return fmt.Errorf("compression.video_backend: unsupported value %q", c.Compression.VideoBackend)
	}
	if c.Compression.TimeoutSeconds <= 0 {
		return errors.New("compression.timeout_seconds must be positive")
	}
	openEnded := 0
	for i, tier := range c.Compression.Tiers {
		if tier.MaxAgeYears < 0 {
			return fmt.Errorf("compression.tiers[%d].max_age_years must be >= 0", i)
		}
		if tier.MaxAgeYears == 0 {
			openEnded++
		}
		if tier.ImageQuality < 1 || tier.ImageQuality > 100 {
			return fmt.Errorf("compression.tiers[%d].image_quality must be between 1 and 100", i)
		}
		if tier.VideoCRF < 0 || tier.VideoCRF > 51 {
			return fmt.Errorf("compression.tiers[%d].video_crf must be between 0 and 51", i)
		}
	}
	if openEnded > 1 {
		return errors.New("compression.tiers may contain at most one open-ended tier (max_age_years = 0)")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.Attempts < 1 {
		return errors.New("retry.attempts must be >= 1")
	}
	if c.Retry.DelaySeconds < 0 {
		return errors.New("retry.delay_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers < 1 || c.Workflow.Workers > 16 {
		return errors.New("workflow.workers must be between 1 and 16")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	switch c.Notifications.Provider {
	case "":
		return nil
	case NotifyProviderNtfy:
		if c.Notifications.NtfyTopic == "" {
			return errors.New("notifications.ntfy_topic must be set when provider is ntfy")
		}
	case NotifyProviderTelegram:
		if c.Notifications.TelegramToken == "" {
			return errors.New("notifications.telegram_token must be set when provider is telegram (or export TELEGRAM_BOT_TOKEN)")
		}
		if c.Notifications.TelegramChatID == "" {
			return errors.New("notifications.telegram_chat_id must be set when provider is telegram (or export TELEGRAM_CHAT_ID)")
		}
	default:
		return fmt.Errorf("notifications.provider: unsupported value %q", c.Notifications.Provider)
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
