// Package config loads and validates the TOML configuration shared by
// the spool daemon and CLI.
package config
