// Package maildir watches a local Maildir for new mail and turns each
// message into an intake action record. Messages are read from new/ and
// moved to cur/ once their batch has been enqueued, following Maildir
// delivery semantics.
package maildir

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"valet/internal/services"
	"valet/internal/vault"
	"valet/internal/watcher"
)

const bodyLimit = 4096

// Provider reads messages from a Maildir's new/ directory.
type Provider struct {
	dir     string
	now     func() time.Time
	pending []string
}

// New binds a provider to an existing Maildir root.
func New(dir string) (*Provider, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "maildir", "new", "maildir path not configured", nil)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, services.Wrap(services.ErrConfiguration, "maildir", "new",
			fmt.Sprintf("maildir %q not accessible", dir), err)
	}
	return &Provider{dir: dir, now: time.Now}, nil
}

// WithClock overrides the provider's clock. Intended for tests.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// Name implements watcher.Provider.
func (p *Provider) Name() string { return "maildir" }

// Poll lists the messages currently in new/ and renders each as an intake
// item. The messages stay in new/ until Commit relocates them.
func (p *Provider) Poll(ctx context.Context) ([]watcher.Item, error) {
	newDir := filepath.Join(p.dir, "new")
	entries, err := os.ReadDir(newDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "maildir", "poll", "read maildir", err)
	}

	p.pending = p.pending[:0]
	var items []watcher.Item
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(newDir, entry.Name())
		item, err := p.render(entry.Name(), path)
		if err != nil {
			// Unreadable messages stay in new/ for the next poll.
			continue
		}
		items = append(items, item)
		p.pending = append(p.pending, entry.Name())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	sort.Strings(p.pending)
	return items, nil
}

// Commit moves the last polled batch from new/ to cur/, marking each
// message seen per Maildir convention. Every polled message is archived,
// enqueued or not: a message still in new/ that the ledger already knows
// was enqueued on a pass that died before its Commit.
func (p *Provider) Commit(ctx context.Context, _ []watcher.Item) error {
	curDir := filepath.Join(p.dir, "cur")
	if err := os.MkdirAll(curDir, 0o755); err != nil {
		return fmt.Errorf("create cur directory: %w", err)
	}
	for _, name := range p.pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(p.dir, "new", name)
		dst := filepath.Join(curDir, name+":2,S")
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("archive message %s: %w", name, err)
		}
	}
	p.pending = p.pending[:0]
	return nil
}

func (p *Provider) render(id, path string) (watcher.Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return watcher.Item{}, err
	}
	defer file.Close()

	msg, err := mail.ReadMessage(file)
	if err != nil {
		return watcher.Item{}, fmt.Errorf("parse message %s: %w", id, err)
	}
	from := msg.Header.Get("From")
	if from == "" {
		from = "Unknown"
	}
	subject := msg.Header.Get("Subject")
	if subject == "" {
		subject = "No Subject"
	}
	body, _ := io.ReadAll(io.LimitReader(msg.Body, bodyLimit))

	doc := vault.Document{
		Meta: vault.FrontMatter{
			{Key: "type", Value: "email"},
			{Key: "source", Value: "maildir"},
			{Key: "from", Value: from},
			{Key: "subject", Value: subject},
			{Key: "received", Value: p.now().Format(time.RFC3339)},
			{Key: "status", Value: "pending"},
		},
		Body: renderBody(subject, string(body)),
	}
	return watcher.Item{
		ID:   id,
		Name: fmt.Sprintf("EMAIL_%s.md", sanitize(id)),
		Doc:  doc,
	}, nil
}

func renderBody(subject, body string) string {
	var b strings.Builder
	b.WriteString("## Email Content\n")
	b.WriteString(subject)
	b.WriteString("\n\n")
	if body = strings.TrimSpace(body); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	b.WriteString("## Suggested Actions\n")
	b.WriteString("- [ ] Reply to sender\n")
	b.WriteString("- [ ] Forward to relevant party\n")
	b.WriteString("- [ ] Archive after processing")
	return b.String()
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
