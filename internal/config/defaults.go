package config

const (
	defaultVaultDir           = "~/vault"
	defaultLogDir             = "~/.local/share/valet/logs"
	defaultPidDir             = "/tmp"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultAuditActor         = "valet"
	defaultSweepInterval      = 5
	defaultPosterInterval     = 30
	defaultErrorRetryInterval = 10
	defaultMaildirInterval    = 120
	defaultCSVDropInterval    = 5
	defaultSupervisorInterval = 30
	defaultPublishTimeout     = 30
	defaultRetryMaxAttempts   = 3
	defaultRetryBaseSeconds   = 1
	defaultRetryMaxSeconds    = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			VaultDir: defaultVaultDir,
			LogDir:   defaultLogDir,
			PidDir:   defaultPidDir,
		},
		Workflow: Workflow{
			SweepInterval:      defaultSweepInterval,
			PosterInterval:     defaultPosterInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Watchers: Watchers{
			MaildirInterval: defaultMaildirInterval,
			CSVDropInterval: defaultCSVDropInterval,
			InboxEnabled:    true,
		},
		Publish: Publish{
			TimeoutSeconds:   defaultPublishTimeout,
			RetryMaxAttempts: defaultRetryMaxAttempts,
			RetryBaseSeconds: defaultRetryBaseSeconds,
			RetryMaxSeconds:  defaultRetryMaxSeconds,
			DryRun:           true,
		},
		Supervisor: Supervisor{
			Interval: defaultSupervisorInterval,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Restarts:       true,
			Approvals:      true,
			Errors:         true,
		},
		Audit: Audit{
			Actor: defaultAuditActor,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
