package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"valet/internal/audit"
	"valet/internal/config"
	"valet/internal/logging"
	"valet/internal/notifications"
	"valet/internal/schedule"
	"valet/internal/vault"
)

// DraftGenerator creates social post drafts for approval. Implemented by
// the poster; injected here so scheduled posting tasks need no knowledge
// of the posting stack.
type DraftGenerator interface {
	GenerateDraft(ctx context.Context, platform string) (*vault.Record, error)
}

// Manager runs the approval pipeline: it sweeps the intake stage into
// plans and approvals, executes the owner's approve/reject verdicts, and
// fires scheduled tasks.
type Manager struct {
	cfg      *config.Config
	store    *vault.Vault
	auditor  *audit.Logger
	notifier notifications.Service
	logger   *slog.Logger
	drafts   DraftGenerator

	sweepInterval time.Duration
	table         *schedule.Table
	now           func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a pipeline manager.
func NewManager(cfg *config.Config, store *vault.Vault, auditor *audit.Logger, notifier notifications.Service, drafts DraftGenerator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Workflow.SweepInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Manager{
		cfg:           cfg,
		store:         store,
		auditor:       auditor,
		notifier:      notifier,
		logger:        logger.With(logging.String(logging.FieldComponent, "pipeline")),
		drafts:        drafts,
		sweepInterval: interval,
		table:         schedule.NewTable(nil),
		now:           time.Now,
	}
}

// WithClock overrides the manager's clock. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Sweep performs one full pipeline pass: intake, approved, rejected, then
// any due scheduled tasks. Each pass carries a sweep id so its log lines
// can be correlated.
func (m *Manager) Sweep(ctx context.Context) error {
	sweepLogger := m.logger.With(logging.String(logging.FieldSweepID, uuid.NewString()))
	if err := m.sweepWith(ctx, sweepLogger); err != nil {
		return err
	}
	m.RunDueSchedules(ctx, m.now())
	return nil
}

func (m *Manager) sweepWith(ctx context.Context, logger *slog.Logger) error {
	if err := m.sweepIntake(ctx, logger); err != nil {
		return err
	}
	if err := m.sweepApproved(ctx, logger); err != nil {
		return err
	}
	return m.sweepRejected(ctx, logger)
}

// SweepIntake processes every record waiting in the intake stage.
func (m *Manager) SweepIntake(ctx context.Context) error {
	return m.sweepIntake(ctx, m.logger)
}

// SweepApproved executes every approved action.
func (m *Manager) SweepApproved(ctx context.Context) error {
	return m.sweepApproved(ctx, m.logger)
}

// SweepRejected archives every rejected action.
func (m *Manager) SweepRejected(ctx context.Context) error {
	return m.sweepRejected(ctx, m.logger)
}
