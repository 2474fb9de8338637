package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"valet/internal/audit"
	"valet/internal/config"
	"valet/internal/logging"
	"valet/internal/notifications"
	"valet/internal/pidfile"
	"valet/internal/pipeline"
	"valet/internal/poster"
	"valet/internal/providers/csvdrop"
	"valet/internal/providers/filedrop"
	"valet/internal/providers/maildir"
	"valet/internal/publisher"
	"valet/internal/retry"
	"valet/internal/supervisor"
	"valet/internal/vault"
	"valet/internal/watcher"
	"valet/internal/watcherstate"
)

// Role selects which workers a valetd process runs. The supervisor
// launches one process per role so a crash in one worker cannot take the
// rest down; --role all runs everything in one process for simple setups.
type Role string

const (
	RoleAll          Role = "all"
	RoleOrchestrator Role = "orchestrator"
	RolePoster       Role = "poster"
	RoleWatchers     Role = "watchers"
	RoleSupervisor   Role = "supervisor"
)

// ParseRole validates a role flag value.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	switch role {
	case "", RoleAll:
		return RoleAll, nil
	case RoleOrchestrator, RolePoster, RoleWatchers, RoleSupervisor:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

// Daemon assembles and coordinates the workers for one role, enforcing
// single-instance execution per role via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	role     Role
	store    *vault.Vault
	auditor  *audit.Logger
	notifier notifications.Service

	pipeline *pipeline.Manager
	poster   *poster.Poster
	super    *supervisor.Supervisor
	watchers []*watcher.Watcher
	filedrop *filedrop.Provider

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool
	Role        string
	PID         int
	VaultPath   string
	LockPath    string
	StageCounts map[vault.Stage]int
	Workers     []WorkerStatus
}

// WorkerStatus reports one supervised worker's liveness.
type WorkerStatus struct {
	Name  string
	Alive bool
	PID   int
}

// New constructs a daemon for the given role with initialized
// dependencies.
func New(cfg *config.Config, logger *slog.Logger, role Role) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := vault.Open(cfg.Paths.VaultDir)
	if err != nil {
		return nil, err
	}
	auditor := audit.NewLogger(store.LogsDir(), cfg.Audit.Actor)
	notifier := notifications.NewService(cfg)

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		role:     role,
		store:    store,
		auditor:  auditor,
		notifier: notifier,
		lockPath: filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("valetd-%s.lock", role)),
	}
	d.lock = flock.New(d.lockPath)

	client := publisher.New(cfg.Publish)
	post := poster.New(store, auditor, client, notifier, logger,
		time.Duration(cfg.Workflow.PosterInterval)*time.Second, cfg.Paths.PidDir)
	d.poster = post
	d.pipeline = pipeline.NewManager(cfg, store, auditor, notifier, post, logger)
	d.super = supervisor.New(cfg, store, auditor, notifier, logger)

	if role == RoleAll || role == RoleWatchers {
		if err := d.buildWatchers(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Daemon) buildWatchers() error {
	policy := retry.NewPolicy(
		d.cfg.Publish.RetryMaxAttempts,
		time.Duration(d.cfg.Publish.RetryBaseSeconds)*time.Second,
		time.Duration(d.cfg.Publish.RetryMaxSeconds)*time.Second,
	)
	reset := d.cfg.Watchers.AllowStateReset

	if dir := strings.TrimSpace(d.cfg.Watchers.MaildirDir); dir != "" {
		provider, err := maildir.New(dir)
		if err != nil {
			return err
		}
		state, err := watcherstate.Open(d.store.LogsDir(), provider.Name(), reset)
		if err != nil {
			return err
		}
		d.watchers = append(d.watchers, watcher.New(provider, d.store, state, d.logger,
			time.Duration(d.cfg.Watchers.MaildirInterval)*time.Second, policy, d.cfg.Paths.PidDir))
	}

	csv := csvdrop.New(d.store)
	csvState, err := watcherstate.Open(d.store.LogsDir(), csv.Name(), reset)
	if err != nil {
		return err
	}
	d.watchers = append(d.watchers, watcher.New(csv, d.store, csvState, d.logger,
		time.Duration(d.cfg.Watchers.CSVDropInterval)*time.Second, policy, d.cfg.Paths.PidDir))

	if d.cfg.Watchers.InboxEnabled {
		drops, err := filedrop.New(d.store)
		if err != nil {
			return err
		}
		d.filedrop = drops
		dropState, err := watcherstate.Open(d.store.LogsDir(), drops.Name(), reset)
		if err != nil {
			return err
		}
		d.watchers = append(d.watchers, watcher.New(drops, d.store, dropState, d.logger,
			time.Duration(d.cfg.Watchers.CSVDropInterval)*time.Second, policy, d.cfg.Paths.PidDir))
	}
	return nil
}

// Start acquires the role lock and launches the role's workers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another valetd %s instance is already running", d.role)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.role == RoleAll || d.role == RoleOrchestrator {
		if err := d.pipeline.Start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return err
		}
	}
	if d.role == RoleAll || d.role == RolePoster {
		d.runWorker(runCtx, d.poster.Run)
	}
	if d.role == RoleAll || d.role == RoleSupervisor {
		d.runWorker(runCtx, d.super.Run)
	}
	for _, w := range d.watchers {
		d.runWorker(runCtx, w.Run)
	}

	d.running.Store(true)
	d.logger.Info("valet daemon started",
		logging.String("role", string(d.role)),
		logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) runWorker(ctx context.Context, run func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("worker exited", logging.Error(err))
		}
	}()
}

// Stop shuts the workers down and releases the role lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pipeline.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("valet daemon stopped")
}

// Close stops the daemon and releases filesystem watches.
func (d *Daemon) Close() error {
	d.Stop()
	if d.filedrop != nil {
		return d.filedrop.Close()
	}
	return nil
}

// Running reports whether the daemon has started.
func (d *Daemon) Running() bool { return d.running.Load() }

// Sweep runs one synchronous pipeline pass, independent of the background
// loop.
func (d *Daemon) Sweep(ctx context.Context) error {
	return d.pipeline.Sweep(ctx)
}

// Status gathers runtime information for the CLI.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	counts, err := d.store.CountByStage()
	if err != nil {
		return Status{}, err
	}
	status := Status{
		Running:     d.running.Load(),
		Role:        string(d.role),
		PID:         os.Getpid(),
		VaultPath:   d.store.Root(),
		LockPath:    d.lockPath,
		StageCounts: counts,
	}
	for _, worker := range d.cfg.Supervisor.Workers {
		alive, pid := pidfile.AliveAt(filepath.Join(d.cfg.Paths.PidDir, worker.Name+".pid"))
		status.Workers = append(status.Workers, WorkerStatus{Name: worker.Name, Alive: alive, PID: pid})
	}
	return status, nil
}

// TestNotification sends a test message through the notifier.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}
