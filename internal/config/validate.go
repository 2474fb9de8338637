package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration invariants that cannot be repaired by
// normalization. It reports the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.VaultDir) == "" {
		return fmt.Errorf("paths.vault_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return fmt.Errorf("paths.log_dir must be set")
	}
	if c.Workflow.SweepInterval <= 0 {
		return fmt.Errorf("workflow.sweep_interval must be positive, got %d", c.Workflow.SweepInterval)
	}
	if c.Workflow.PosterInterval <= 0 {
		return fmt.Errorf("workflow.poster_interval must be positive, got %d", c.Workflow.PosterInterval)
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return fmt.Errorf("workflow.error_retry_interval must be positive, got %d", c.Workflow.ErrorRetryInterval)
	}
	if c.Supervisor.Interval <= 0 {
		return fmt.Errorf("supervisor.interval must be positive, got %d", c.Supervisor.Interval)
	}
	if c.Publish.RetryMaxAttempts <= 0 {
		return fmt.Errorf("publish.retry_max_attempts must be positive, got %d", c.Publish.RetryMaxAttempts)
	}
	if c.Publish.RetryBaseSeconds < 0 {
		return fmt.Errorf("publish.retry_base_seconds must not be negative, got %d", c.Publish.RetryBaseSeconds)
	}
	if c.Publish.RetryMaxSeconds < c.Publish.RetryBaseSeconds {
		return fmt.Errorf("publish.retry_max_seconds must be >= retry_base_seconds")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}

	seen := make(map[string]struct{}, len(c.Supervisor.Workers))
	for _, worker := range c.Supervisor.Workers {
		if worker.Name == "" {
			return fmt.Errorf("supervisor.workers entries require a name")
		}
		if strings.TrimSpace(worker.Command) == "" {
			return fmt.Errorf("supervisor worker %q requires a command", worker.Name)
		}
		if _, dup := seen[worker.Name]; dup {
			return fmt.Errorf("supervisor worker %q configured twice", worker.Name)
		}
		seen[worker.Name] = struct{}{}
	}
	return nil
}
