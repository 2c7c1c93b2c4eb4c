// Package testsupport provides helpers shared by package tests: temp-dir
// configurations, opened stores, and stubbed external binaries.
package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"spool/internal/config"
	"spool/internal/queue"
)

// NewConfig returns a validated configuration rooted in a temp directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.AuthDir = filepath.Join(base, "auth")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Workers.Count = 1

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a queue store for the configuration and registers
// cleanup.
func MustOpenStore(t *testing.T, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedAccount inserts an account with a present credential.
func SeedAccount(t *testing.T, store *queue.Store, id string) *queue.Account {
	t.Helper()

	account := &queue.Account{
		ID:                id,
		Country:           "us",
		AuthFile:          id + ".json",
		CredentialPresent: true,
	}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

// SeedItem inserts an item owned by the given account.
func SeedItem(t *testing.T, store *queue.Store, accountID, itemID string) *queue.Item {
	t.Helper()

	item := &queue.Item{
		ID:         itemID,
		Title:      "Test Title " + itemID,
		AccountID:  accountID,
		RuntimeSec: 7200,
	}
	if err := store.UpsertItem(context.Background(), item); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

// WriteExecutable creates an executable script in dir and returns its path.
func WriteExecutable(t *testing.T, dir, name, script string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write executable %s: %v", name, err)
	}
	return path
}
