// Package watcher runs the generic poll loop shared by all source
// watchers. A Provider discovers new items from its source; the loop
// deduplicates against the watcher's processed-ID ledger, enqueues action
// records into the intake stage, and persists the ledger.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"valet/internal/logging"
	"valet/internal/pidfile"
	"valet/internal/retry"
	"valet/internal/services"
	"valet/internal/vault"
	"valet/internal/watcherstate"
)

// Item is one unit of new work discovered at a source.
type Item struct {
	ID   string
	Name string
	Doc  vault.Document
}

// Provider discovers new work from an external source. Poll returns every
// candidate it can currently see; the loop filters out already-processed
// IDs.
type Provider interface {
	Name() string
	Poll(ctx context.Context) ([]Item, error)
}

// Committer is an optional Provider extension invoked after a polled
// batch has been worked through, for sources that archive their input or
// materialize side effects afterwards. It receives the items this pass
// actually enqueued, which excludes anything already seen, and runs even
// when that set is empty so input left over from an interrupted pass
// still gets archived.
type Committer interface {
	Commit(ctx context.Context, enqueued []Item) error
}

// Watcher drives one provider on an interval.
type Watcher struct {
	provider Provider
	store    *vault.Vault
	state    *watcherstate.Store
	logger   *slog.Logger
	interval time.Duration
	policy   retry.Policy
	pidDir   string
}

// New assembles a watcher for one provider.
func New(provider Provider, store *vault.Vault, state *watcherstate.Store, logger *slog.Logger, interval time.Duration, policy retry.Policy, pidDir string) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		provider: provider,
		store:    store,
		state:    state,
		logger:   logger.With(logging.String(logging.FieldComponent, "watcher"), logging.String(logging.FieldProvider, provider.Name())),
		interval: interval,
		policy:   policy,
		pidDir:   pidDir,
	}
}

// RunOnce polls the provider a single time and enqueues every unseen item.
// The poll itself is retried on transient failures; enqueue failures abort
// the batch so unprocessed IDs stay unmarked.
func (w *Watcher) RunOnce(ctx context.Context) (int, error) {
	var items []Item
	err := w.policy.Do(ctx, func(ctx context.Context) error {
		var pollErr error
		items, pollErr = w.provider.Poll(ctx)
		return pollErr
	})
	if err != nil {
		return 0, fmt.Errorf("poll %s: %w", w.provider.Name(), err)
	}

	var enqueued []Item
	for _, item := range items {
		if item.ID == "" || w.state.Seen(item.ID) {
			continue
		}
		if _, err := w.store.Enqueue(vault.StageIntake, item.Name, item.Doc); err != nil {
			return len(enqueued), fmt.Errorf("enqueue %s: %w", item.Name, err)
		}
		if err := w.state.MarkProcessed(item.ID); err != nil {
			return len(enqueued), err
		}
		enqueued = append(enqueued, item)
		w.logger.Info("queued action record", logging.String(logging.FieldRecord, item.Name))
	}

	if committer, ok := w.provider.(Committer); ok && len(items) > 0 {
		if err := committer.Commit(ctx, enqueued); err != nil {
			return len(enqueued), fmt.Errorf("commit %s: %w", w.provider.Name(), err)
		}
	}
	return len(enqueued), nil
}

// Run polls on the configured interval until the context is canceled. A
// pid file marks the loop alive for the supervisor. Errors are logged and
// the loop keeps going; only context cancellation stops it.
func (w *Watcher) Run(ctx context.Context) error {
	pidPath := filepath.Join(w.pidDir, w.provider.Name()+".pid")
	if err := pidfile.WriteSelf(pidPath); err != nil {
		return err
	}
	defer func() {
		_ = pidfile.Remove(pidPath)
	}()

	w.logger.Info("watcher started", logging.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if count, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !services.IsBenignRace(err) {
				w.logger.Error("watcher sweep failed", logging.Error(err))
			}
		} else if count > 0 {
			w.logger.Info("watcher sweep complete", logging.Int("enqueued", count))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
