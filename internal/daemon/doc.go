// Package daemon wires the vault, audit log, notifier, pipeline, poster,
// supervisor, and watchers into a single managed process. A Daemon runs
// the workers for one role, holds the per-role lock file, and exposes the
// operations the IPC server serves to the CLI.
package daemon
