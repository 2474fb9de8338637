package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"valet/internal/logging"
	"valet/internal/pidfile"
)

// Start begins background sweeping. Schedules are loaded once on start;
// edit a schedule file and restart (or send a reload over IPC) to change
// the table.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.ReloadSchedules(runCtx); err != nil {
		m.logger.Error("schedule load failed", logging.Error(err))
	}

	go m.runLoop(runCtx)
	return nil
}

// Stop terminates background sweeping and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the background loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()

	pidPath := filepath.Join(m.cfg.Paths.PidDir, "orchestrator.pid")
	if err := pidfile.WriteSelf(pidPath); err != nil {
		m.logger.Error("pid file write failed", logging.Error(err))
		return
	}
	defer func() {
		_ = pidfile.Remove(pidPath)
	}()

	m.logger.Info("pipeline started", logging.Duration("interval", m.sweepInterval))
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		if err := m.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				m.logger.Info("pipeline stopped")
				return
			}
			m.logger.Error("sweep failed", logging.Error(err))
		}

		select {
		case <-ctx.Done():
			m.logger.Info("pipeline stopped")
			return
		case <-ticker.C:
		}
	}
}
