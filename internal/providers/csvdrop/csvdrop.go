// Package csvdrop turns bank-export CSV files dropped into the vault's
// Accounting/Drops directory into per-transaction review records. Each row
// becomes one intake record; the running ledger in Current_Month.md and
// the drop file's relocation to Done happen at Commit, after the batch has
// been worked through.
package csvdrop

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"valet/internal/fileutil"
	"valet/internal/services"
	"valet/internal/textutil"
	"valet/internal/vault"
	"valet/internal/watcher"
)

const currentMonthHeader = "# Current Month Transactions\n\n"

// subscriptionVendors maps description substrings to the recurring
// service they bill for.
var subscriptionVendors = map[string]string{
	"netflix.com": "Netflix",
	"spotify.com": "Spotify",
	"adobe.com":   "Adobe Creative Cloud",
	"notion.so":   "Notion",
	"slack.com":   "Slack",
}

// Provider parses dropped CSV exports into finance action records.
type Provider struct {
	store *vault.Vault

	pendingFiles []string
	pendingRows  map[string]row
}

type row struct {
	date        string
	description string
	amount      string
	category    string
}

// New binds a provider to the vault's drop directory.
func New(store *vault.Vault) *Provider {
	return &Provider{store: store}
}

// Name implements watcher.Provider.
func (p *Provider) Name() string { return "csvdrop" }

// Poll reads every CSV currently in the drop directory and renders one
// item per data row. A file that fails to parse is skipped and left in
// place for inspection.
func (p *Provider) Poll(ctx context.Context) ([]watcher.Item, error) {
	entries, err := os.ReadDir(p.store.DropsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "csvdrop", "poll", "read drop directory", err)
	}

	p.pendingFiles = p.pendingFiles[:0]
	p.pendingRows = make(map[string]row)
	var items []watcher.Item
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".csv") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileItems, err := p.renderFile(entry.Name())
		if err != nil {
			continue
		}
		items = append(items, fileItems...)
		p.pendingFiles = append(p.pendingFiles, entry.Name())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Commit appends the enqueued transactions to Current_Month.md and moves
// the polled drop files to Done. Files whose rows were all enqueued on an
// earlier pass still get archived; their ledger lines were written then.
func (p *Provider) Commit(ctx context.Context, enqueued []watcher.Item) error {
	if err := p.appendTransactions(enqueued); err != nil {
		return err
	}
	for _, name := range p.pendingFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(p.store.DropsDir(), name)
		dst := filepath.Join(p.store.StageDir(vault.StageDone), name)
		if err := fileutil.MoveFile(src, dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("archive drop %s: %w", name, err)
		}
	}
	p.pendingFiles = p.pendingFiles[:0]
	p.pendingRows = nil
	return nil
}

func (p *Provider) renderFile(name string) ([]watcher.Item, error) {
	file, err := os.Open(filepath.Join(p.store.DropsDir(), name))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}
	columns := make(map[string]int, len(header))
	for i, col := range header {
		columns[strings.ToLower(strings.TrimSpace(col))] = i
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	var items []watcher.Item
	for line := 1; ; line++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d of %s: %w", line, name, err)
		}
		r := row{
			date:        fieldValue(fields, columns, "date"),
			description: fieldValue(fields, columns, "description"),
			amount:      fieldValue(fields, columns, "amount"),
			category:    fieldValue(fields, columns, "category"),
		}
		if r.category == "" {
			r.category = "uncategorized"
		}
		meta := vault.FrontMatter{
			{Key: "type", Value: "finance"},
			{Key: "source", Value: "csv_drop"},
			{Key: "date", Value: r.date},
			{Key: "description", Value: r.description},
			{Key: "amount", Value: r.amount},
		}
		if vendor, ok := detectSubscription(r.description); ok {
			meta = append(meta, vault.Field{Key: "subscription", Value: vendor})
		}
		meta = append(meta, vault.Field{Key: "status", Value: "pending"})

		id := fmt.Sprintf("%s#%d", name, line)
		p.pendingRows[id] = r
		items = append(items, watcher.Item{
			ID:   id,
			Name: fmt.Sprintf("FINANCE_%s_%03d.md", textutil.SanitizeToken(stem), line),
			Doc: vault.Document{
				Meta: meta,
				Body: "## Transaction Review\n- [ ] Confirm categorization\n- [ ] Validate amount",
			},
		})
	}
	return items, nil
}

// detectSubscription reports the recurring service a transaction
// description bills for, if any.
func detectSubscription(description string) (string, bool) {
	description = strings.ToLower(description)
	for pattern, vendor := range subscriptionVendors {
		if strings.Contains(description, pattern) {
			return vendor, true
		}
	}
	return "", false
}

func (p *Provider) appendTransactions(enqueued []watcher.Item) error {
	var rows []row
	for _, item := range enqueued {
		if r, ok := p.pendingRows[item.ID]; ok {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	path := filepath.Join(p.store.AccountingDir(), "Current_Month.md")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := fileutil.WriteFileAtomic(path, []byte(currentMonthHeader), 0o644); err != nil {
			return fmt.Errorf("create ledger: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	for _, r := range rows {
		line := fmt.Sprintf("- %s | %s | %s | %s\n", r.date, r.description, r.amount, r.category)
		if _, err := file.WriteString(line); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
	}
	return nil
}

func fieldValue(fields []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}
