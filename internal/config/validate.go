package config

import (
	"errors"
	"fmt"
)

// Validate checks invariants the rest of the system depends on.
func (c *Config) Validate() error {
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir is required")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir is required")
	}
	if c.Paths.AuthDir == "" {
		return errors.New("paths.auth_dir is required")
	}
	if c.Paths.APIBind == "" {
		return errors.New("paths.api_bind is required")
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1, got %d", c.Workers.Count)
	}
	if c.Workers.ShortCooldown <= 0 {
		return fmt.Errorf("workers.short_cooldown_seconds must be positive, got %d", c.Workers.ShortCooldown)
	}
	if c.Workers.LongCooldown < c.Workers.ShortCooldown {
		return fmt.Errorf("workers.long_cooldown_seconds (%d) must not be below short_cooldown_seconds (%d)",
			c.Workers.LongCooldown, c.Workers.ShortCooldown)
	}
	if c.Fetcher.Binary == "" {
		return errors.New("fetcher.binary is required")
	}
	if c.Transcoder.Binary == "" {
		return errors.New("transcoder.binary is required")
	}
	if c.Auth.Phase1TimeoutSeconds <= 0 || c.Auth.Phase2TimeoutSeconds <= 0 {
		return errors.New("auth phase timeouts must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
