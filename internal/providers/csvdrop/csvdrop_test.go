package csvdrop_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"valet/internal/providers/csvdrop"
	"valet/internal/vault"
)

const sampleCSV = `date,description,amount,category
2026-03-01,Coffee supplies,-42.10,office
2026-03-02,Client payment,1500.00,
`

func newHarness(t *testing.T) (*csvdrop.Provider, *vault.Vault) {
	t.Helper()
	store, err := vault.Open(t.TempDir())
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	return csvdrop.New(store), store
}

func drop(t *testing.T, store *vault.Vault, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(store.DropsDir(), name), []byte(content), 0o644); err != nil {
		t.Fatalf("drop %s: %v", name, err)
	}
}

func TestPollRendersPerRowItems(t *testing.T) {
	provider, store := newHarness(t)
	drop(t, store, "march.csv", sampleCSV)

	items, err := provider.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	first := items[0]
	if first.ID != "march.csv#1" {
		t.Errorf("ID = %q", first.ID)
	}
	if first.Name != "FINANCE_march_001.md" {
		t.Errorf("Name = %q", first.Name)
	}
	if got := first.Doc.Meta.Get("description"); got != "Coffee supplies" {
		t.Errorf("description = %q", got)
	}
	if got := first.Doc.Meta.Get("amount"); got != "-42.10" {
		t.Errorf("amount = %q", got)
	}
	if !strings.Contains(first.Doc.Body, "Transaction Review") {
		t.Errorf("body = %q", first.Doc.Body)
	}
}

func TestCommitAppendsLedgerAndArchivesFile(t *testing.T) {
	provider, store := newHarness(t)
	drop(t, store, "march.csv", sampleCSV)

	items, err := provider.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if err := provider.Commit(context.Background(), items); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ledger, err := os.ReadFile(filepath.Join(store.AccountingDir(), "Current_Month.md"))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	text := string(ledger)
	if !strings.HasPrefix(text, "# Current Month Transactions") {
		t.Errorf("ledger header missing: %q", text)
	}
	if !strings.Contains(text, "- 2026-03-01 | Coffee supplies | -42.10 | office") {
		t.Errorf("ledger missing first row: %q", text)
	}
	if !strings.Contains(text, "- 2026-03-02 | Client payment | 1500.00 | uncategorized") {
		t.Errorf("ledger missing default category: %q", text)
	}

	if _, err := os.Stat(filepath.Join(store.DropsDir(), "march.csv")); !os.IsNotExist(err) {
		t.Error("drop file still present after commit")
	}
	if _, err := os.Stat(filepath.Join(store.StageDir(vault.StageDone), "march.csv")); err != nil {
		t.Errorf("drop file not archived to Done: %v", err)
	}
}

func TestPollSkipsUnparseableFiles(t *testing.T) {
	provider, store := newHarness(t)
	drop(t, store, "good.csv", sampleCSV)
	drop(t, store, "bad.csv", "date,amount\n\"unterminated")
	drop(t, store, "notes.txt", "not a csv")

	items, err := provider.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	for _, item := range items {
		if strings.HasPrefix(item.ID, "bad.csv") || strings.HasPrefix(item.ID, "notes.txt") {
			t.Errorf("unexpected item %q", item.ID)
		}
	}
	if len(items) != 2 {
		t.Errorf("got %d items, want 2 from good.csv", len(items))
	}
}

func TestPollEmptyDropDir(t *testing.T) {
	provider, _ := newHarness(t)
	items, err := provider.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
	if err := provider.Commit(context.Background(), nil); err != nil {
		t.Fatalf("Commit on empty batch: %v", err)
	}
}

func TestCommitArchivesWithoutReappendingSeenRows(t *testing.T) {
	provider, store := newHarness(t)
	drop(t, store, "march.csv", sampleCSV)

	items, err := provider.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if err := provider.Commit(context.Background(), items); err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	// The same file reappears with every row already processed, as after
	// a pass that died between marking rows and archiving the file.
	drop(t, store, "march.csv", sampleCSV)
	if _, err := provider.Poll(context.Background()); err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if err := provider.Commit(context.Background(), nil); err != nil {
		t.Fatalf("second Commit: %v", err)
	}

	ledger, err := os.ReadFile(filepath.Join(store.AccountingDir(), "Current_Month.md"))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if got := strings.Count(string(ledger), "Coffee supplies"); got != 1 {
		t.Errorf("ledger has %d copies of the row, want 1", got)
	}
	if _, err := os.Stat(filepath.Join(store.DropsDir(), "march.csv")); !os.IsNotExist(err) {
		t.Error("leftover drop file not archived")
	}
}

func TestPollTagsSubscriptions(t *testing.T) {
	provider, store := newHarness(t)
	drop(t, store, "april.csv", `date,description,amount,category
2026-04-01,NETFLIX.COM monthly charge,-15.49,entertainment
2026-04-02,Hardware store,-89.00,supplies
`)

	items, err := provider.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if got := items[0].Doc.Meta.Get("subscription"); got != "Netflix" {
		t.Errorf("subscription = %q, want Netflix", got)
	}
	if got := items[1].Doc.Meta.Get("subscription"); got != "" {
		t.Errorf("subscription = %q on a one-off purchase, want none", got)
	}
}
