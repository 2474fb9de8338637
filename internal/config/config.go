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

// Paths contains directory configuration.
type Paths struct {
	VaultDir   string `toml:"vault_dir"`
	LogDir     string `toml:"log_dir"`
	PidDir     string `toml:"pid_dir"`
	SocketPath string `toml:"socket_path"`
}

// Workflow contains orchestrator timing configuration.
type Workflow struct {
	SweepInterval      int `toml:"sweep_interval"`
	PosterInterval     int `toml:"poster_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Watchers contains provider polling configuration.
type Watchers struct {
	MaildirDir      string `toml:"maildir_dir"`
	MaildirInterval int    `toml:"maildir_interval"`
	CSVDropInterval int    `toml:"csv_drop_interval"`
	InboxEnabled    bool   `toml:"inbox_enabled"`
	AllowStateReset bool   `toml:"allow_state_reset"`
}

// Publish contains configuration for the outbound publisher.
type Publish struct {
	Endpoint         string `toml:"endpoint"`
	Token            string `toml:"token"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	RetryMaxAttempts int    `toml:"retry_max_attempts"`
	RetryBaseSeconds int    `toml:"retry_base_seconds"`
	RetryMaxSeconds  int    `toml:"retry_max_seconds"`
	DryRun           bool   `toml:"dry_run"`
}

// Worker describes one supervised process.
type Worker struct {
	Name    string `toml:"name"`
	Command string `toml:"command"`
}

// Supervisor contains watchdog configuration.
type Supervisor struct {
	Interval int      `toml:"interval"`
	Workers  []Worker `toml:"workers"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Restarts       bool   `toml:"restarts"`
	Approvals      bool   `toml:"approvals"`
	Errors         bool   `toml:"errors"`
}

// Audit contains audit trail configuration.
type Audit struct {
	Actor string `toml:"actor"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for valet.
//
// Configuration sections by subsystem:
//   - Paths: vault root, daemon log directory, pid files, IPC socket
//   - Workflow: orchestrator and poster sweep intervals
//   - Watchers: provider polling intervals and source directories
//   - Publish: outbound publisher endpoint, retry policy, dry-run switch
//   - Supervisor: supervised worker commands and sweep interval
//   - Notifications: ntfy push notification settings
//   - Audit: audit trail actor identity
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Watchers      Watchers      `toml:"watchers"`
	Publish       Publish       `toml:"publish"`
	Supervisor    Supervisor    `toml:"supervisor"`
	Notifications Notifications `toml:"notifications"`
	Audit         Audit         `toml:"audit"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/valet/config.toml")
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("valet.toml")
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

func (c *Config) normalize() error {
	var err error
	if c.Paths.VaultDir, err = expandPath(c.Paths.VaultDir); err != nil {
		return fmt.Errorf("paths.vault_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.PidDir, err = expandPath(c.Paths.PidDir); err != nil {
		return fmt.Errorf("paths.pid_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.LogDir, "valetd.sock")
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	if strings.TrimSpace(c.Watchers.MaildirDir) != "" {
		if c.Watchers.MaildirDir, err = expandPath(c.Watchers.MaildirDir); err != nil {
			return fmt.Errorf("watchers.maildir_dir: %w", err)
		}
	}
	c.Publish.Endpoint = strings.TrimSpace(c.Publish.Endpoint)
	c.Publish.Token = strings.TrimSpace(c.Publish.Token)
	c.Audit.Actor = strings.TrimSpace(c.Audit.Actor)
	if c.Audit.Actor == "" {
		c.Audit.Actor = defaultAuditActor
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	for i := range c.Supervisor.Workers {
		c.Supervisor.Workers[i].Name = strings.TrimSpace(c.Supervisor.Workers[i].Name)
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.VaultDir, c.Paths.LogDir, c.Paths.PidDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
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

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
