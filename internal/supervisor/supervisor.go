// Package supervisor keeps the configured workers alive. Each worker
// leaves a pid file; the supervisor probes those on an interval, relaunches
// anything dead, and raises a system_alert record so the owner hears about
// it. Restarts are immediate and unconditional: a crash-looping worker is
// the owner's call to make, not the supervisor's.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"valet/internal/audit"
	"valet/internal/config"
	"valet/internal/logging"
	"valet/internal/notifications"
	"valet/internal/pidfile"
	"valet/internal/services"
	"valet/internal/textutil"
	"valet/internal/vault"
)

// Launcher starts a worker process and returns its pid. The default
// implementation launches detached via exec; tests substitute their own.
type Launcher func(ctx context.Context, name, command string) (int, error)

// Supervisor watches worker pid files and restarts dead workers.
type Supervisor struct {
	workers  []config.Worker
	store    *vault.Vault
	auditor  *audit.Logger
	notifier notifications.Service
	logger   *slog.Logger
	interval time.Duration
	pidDir   string
	launch   Launcher
	now      func() time.Time
}

// New assembles a Supervisor over the configured worker table.
func New(cfg *config.Config, store *vault.Vault, auditor *audit.Logger, notifier notifications.Service, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Supervisor.Interval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Supervisor{
		workers:  cfg.Supervisor.Workers,
		store:    store,
		auditor:  auditor,
		notifier: notifier,
		logger:   logger.With(logging.String(logging.FieldComponent, "supervisor")),
		interval: interval,
		pidDir:   cfg.Paths.PidDir,
		launch:   launchDetached,
		now:      time.Now,
	}
}

// WithLauncher overrides process launching. Intended for tests.
func (s *Supervisor) WithLauncher(launch Launcher) *Supervisor {
	s.launch = launch
	return s
}

// WithClock overrides the supervisor's clock. Intended for tests.
func (s *Supervisor) WithClock(now func() time.Time) *Supervisor {
	s.now = now
	return s
}

// CheckOnce probes every worker once and restarts the dead ones. It
// returns the names of workers restarted this pass.
func (s *Supervisor) CheckOnce(ctx context.Context) ([]string, error) {
	var restarted []string
	for _, worker := range s.workers {
		if err := ctx.Err(); err != nil {
			return restarted, err
		}
		pidPath := filepath.Join(s.pidDir, worker.Name+".pid")
		if alive, _ := pidfile.AliveAt(pidPath); alive {
			continue
		}
		if err := s.restart(ctx, worker, pidPath); err != nil {
			s.logger.Error("restart failed",
				logging.String(logging.FieldWorker, worker.Name),
				logging.Error(err))
			continue
		}
		restarted = append(restarted, worker.Name)
	}
	return restarted, nil
}

// Run probes on the configured interval until the context is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	pidPath := filepath.Join(s.pidDir, "supervisor.pid")
	if err := pidfile.WriteSelf(pidPath); err != nil {
		return err
	}
	defer func() {
		_ = pidfile.Remove(pidPath)
	}()

	s.logger.Info("supervisor started",
		logging.Duration("interval", s.interval),
		logging.Int("workers", len(s.workers)))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.CheckOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("liveness sweep failed", logging.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) restart(ctx context.Context, worker config.Worker, pidPath string) error {
	pid, err := s.launch(ctx, worker.Name, worker.Command)
	if err != nil {
		return services.Wrap(services.ErrTransient, "supervisor", "restart",
			fmt.Sprintf("launch %s", worker.Name), err)
	}
	if err := pidfile.Write(pidPath, pid); err != nil {
		return err
	}
	s.logger.Info("worker restarted",
		logging.String(logging.FieldWorker, worker.Name),
		logging.Int("pid", pid))

	if err := s.raiseAlert(worker.Name); err != nil {
		return err
	}
	if err := s.auditor.Record(audit.Entry{
		ActionType: audit.ActionSystemAlert,
		Target:     worker.Name,
		Parameters: map[string]string{"pid": fmt.Sprintf("%d", pid)},
		Result:     "restarted",
	}); err != nil {
		return err
	}
	_ = s.notifier.NotifyWorkerRestarted(ctx, worker.Name, pid)
	return nil
}

func (s *Supervisor) raiseAlert(workerName string) error {
	// Worker name in the file name keeps one sweep's alerts from
	// overwriting each other when several workers restart in the same
	// second.
	name := fmt.Sprintf("ALERT_%s_%d.md", textutil.SanitizeToken(workerName), s.now().Unix())
	doc := vault.Document{
		Meta: vault.FrontMatter{
			{Key: "type", Value: "system_alert"},
			{Key: "status", Value: "pending"},
		},
		Body: fmt.Sprintf("%s was restarted", workerName),
	}
	_, err := s.store.Enqueue(vault.StageIntake, name, doc)
	return err
}

func launchDetached(ctx context.Context, name, command string) (int, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return 0, fmt.Errorf("worker %s has no command", name)
	}
	// Deliberately not exec.CommandContext: the worker must outlive the
	// supervisor's sweep context.
	cmd := exec.Command(fields[0], fields[1:]...)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}
