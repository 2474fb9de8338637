// Package filedrop watches the vault's Inbox directory for dropped files.
// A new file gets a metadata record in the intake stage plus a one-time
// payload copy beside it; the original stays in the Inbox where the owner
// left it. Filesystem events trigger prompt pickup; a directory scan on
// every poll catches files dropped while the watcher was down.
package filedrop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"valet/internal/fileutil"
	"valet/internal/services"
	"valet/internal/textutil"
	"valet/internal/vault"
	"valet/internal/watcher"
)

// Provider turns Inbox file drops into intake records.
type Provider struct {
	store *vault.Vault

	notifier *fsnotify.Watcher
	done     chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
}

// New starts watching the vault's Inbox directory. Close must be called to
// release the filesystem watch.
func New(store *vault.Vault) (*Provider, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "filedrop", "new", "create filesystem watcher", err)
	}
	if err := notifier.Add(store.InboxDir()); err != nil {
		_ = notifier.Close()
		return nil, services.Wrap(services.ErrConfiguration, "filedrop", "new",
			fmt.Sprintf("watch inbox %q", store.InboxDir()), err)
	}
	p := &Provider{
		store:    store,
		notifier: notifier,
		done:     make(chan struct{}),
		pending:  make(map[string]struct{}),
	}
	go p.collect()
	return p, nil
}

// Close stops the filesystem watch.
func (p *Provider) Close() error {
	close(p.done)
	return p.notifier.Close()
}

// Name implements watcher.Provider.
func (p *Provider) Name() string { return "filedrop" }

// Poll returns an item for every file currently in the Inbox. Payload
// copies happen at Commit, only for drops the loop actually enqueued.
func (p *Provider) Poll(ctx context.Context) ([]watcher.Item, error) {
	names := p.drain()

	entries, err := os.ReadDir(p.store.InboxDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "filedrop", "poll", "read inbox", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			names[entry.Name()] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var items []watcher.Item
	for _, name := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := p.render(name)
		if err != nil {
			// A vanished or half-written file waits for the next poll.
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *Provider) render(name string) (watcher.Item, error) {
	src := filepath.Join(p.store.InboxDir(), name)
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return watcher.Item{}, fmt.Errorf("stat drop %s: %w", name, err)
	}

	safe := textutil.SanitizeFileName(name)
	if safe == "" {
		return watcher.Item{}, fmt.Errorf("drop %s has no usable name", name)
	}

	stem := strings.TrimSuffix(safe, filepath.Ext(safe))
	return watcher.Item{
		ID:   name,
		Name: fmt.Sprintf("FILE_%s.md", stem),
		Doc: vault.Document{
			Meta: vault.FrontMatter{
				{Key: "type", Value: "file_drop"},
				{Key: "source", Value: "inbox"},
				{Key: "original_name", Value: name},
				{Key: "payload", Value: "FILE_" + safe},
				{Key: "size", Value: fmt.Sprintf("%d", info.Size())},
				{Key: "status", Value: "pending"},
			},
			Body: "New file dropped for processing.",
		},
	}, nil
}

// Commit copies the payload of each newly enqueued drop into the intake
// stage, next to its metadata record. Drops the ledger has already seen
// are never re-copied.
func (p *Provider) Commit(ctx context.Context, enqueued []watcher.Item) error {
	for _, item := range enqueued {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(p.store.InboxDir(), item.ID)
		dst := filepath.Join(p.store.StageDir(vault.StageIntake), "FILE_"+textutil.SanitizeFileName(item.ID))
		if err := fileutil.CopyFileVerified(src, dst); err != nil {
			return fmt.Errorf("copy drop %s: %w", item.ID, err)
		}
	}
	return nil
}

func (p *Provider) collect() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.notifier.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			p.mu.Lock()
			p.pending[filepath.Base(event.Name)] = struct{}{}
			p.mu.Unlock()
		case _, ok := <-p.notifier.Errors:
			if !ok {
				return
			}
		}
	}
}

func (p *Provider) drain() map[string]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := p.pending
	p.pending = make(map[string]struct{})
	return names
}
