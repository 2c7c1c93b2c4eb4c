package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.AuthDir, err = expandPath(c.Paths.AuthDir); err != nil {
		return err
	}

	c.Fetcher.Binary = strings.TrimSpace(c.Fetcher.Binary)
	c.Transcoder.Binary = strings.TrimSpace(c.Transcoder.Binary)
	c.Auth.Country = strings.ToLower(strings.TrimSpace(c.Auth.Country))
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
