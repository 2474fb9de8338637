package testsupport

import (
	"path/filepath"
	"testing"

	"valet/internal/config"
	"valet/internal/vault"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and a vault with the standard stage layout already on disk.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.VaultDir = filepath.Join(base, "vault")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.PidDir = filepath.Join(base, "pids")
	cfg.Paths.SocketPath = filepath.Join(base, "valetd.sock")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store, err := vault.Open(cfg.Paths.VaultDir)
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	if err := store.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout: %v", err)
	}
	return &cfg
}

// WithNtfyTopic enables notifications against the given server topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Notifications.NtfyTopic = topic
	}
}
