package vault_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"valet/internal/services"
	"valet/internal/vault"
)

func openVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return v
}

func TestOpenCreatesLayout(t *testing.T) {
	root := t.TempDir()
	if _, err := vault.Open(root); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, dir := range []string{
		"Needs_Action", "Plans", "Pending_Approval", "Approved", "Rejected", "Done",
		"Logs", "Schedules", "Inbox", filepath.Join("Accounting", "Drops"), "Briefings",
	} {
		if _, err := os.Stat(filepath.Join(root, dir)); err != nil {
			t.Errorf("expected directory %s: %v", dir, err)
		}
	}
}

func TestOpenRejectsEmptyRoot(t *testing.T) {
	if _, err := vault.Open("  "); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEnqueueAndRead(t *testing.T) {
	v := openVault(t)
	doc := vault.Document{
		Meta: vault.FrontMatter{
			{Key: "type", Value: "email"},
			{Key: "source", Value: "gmail_watcher"},
		},
		Body: "Please send the Q3 invoice.",
	}
	rec, err := v.Enqueue(vault.StageIntake, "EMAIL_123.md", doc)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if rec.ID != "EMAIL_123" {
		t.Errorf("ID = %q, want EMAIL_123", rec.ID)
	}

	got, err := v.Read(vault.StageIntake, "EMAIL_123.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Meta["type"] != "email" || got.Meta["source"] != "gmail_watcher" {
		t.Errorf("unexpected meta: %#v", got.Meta)
	}
	if got.Body != "Please send the Q3 invoice." {
		t.Errorf("body = %q", got.Body)
	}
	if got.Kind() != "email" {
		t.Errorf("Kind = %q", got.Kind())
	}
}

func TestAdvanceMovesRecordExactlyOnce(t *testing.T) {
	v := openVault(t)
	rec, err := v.Enqueue(vault.StageIntake, "TASK_1.md", vault.Document{Body: "notes"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := v.Advance(rec, vault.StageIntake, vault.StagePlans); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if v.Exists(vault.StageIntake, "TASK_1.md") {
		t.Error("record still present in source stage")
	}
	if !v.Exists(vault.StagePlans, "TASK_1.md") {
		t.Error("record missing from destination stage")
	}
	if rec.Stage != vault.StagePlans {
		t.Errorf("Stage = %s, want Plans", rec.Stage)
	}
}

func TestAdvanceMissingSourceIsNotFound(t *testing.T) {
	v := openVault(t)
	rec := &vault.Record{Name: "GONE.md"}
	err := v.Advance(rec, vault.StageIntake, vault.StagePlans)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestScanSortedAndMarkdownOnly(t *testing.T) {
	v := openVault(t)
	for _, name := range []string{"B_TASK.md", "A_TASK.md"} {
		if _, err := v.Enqueue(vault.StageIntake, name, vault.Document{Body: "x"}); err != nil {
			t.Fatalf("Enqueue %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(v.StageDir(vault.StageIntake), "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	records, err := v.Scan(vault.StageIntake)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Name != "A_TASK.md" || records[1].Name != "B_TASK.md" {
		t.Errorf("unexpected order: %s, %s", records[0].Name, records[1].Name)
	}
}

func TestScanCarriesParseError(t *testing.T) {
	v := openVault(t)
	broken := "---\ntype: [unclosed\n---\n\nbody text"
	path := filepath.Join(v.StageDir(vault.StageIntake), "BROKEN.md")
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	records, err := v.Scan(vault.StageIntake)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].ParseErr == nil {
		t.Error("expected ParseErr on malformed front matter")
	}
	if records[0].Body != "body text" {
		t.Errorf("body = %q", records[0].Body)
	}
}

func TestCountByStage(t *testing.T) {
	v := openVault(t)
	for i := 0; i < 3; i++ {
		name := string(rune('A'+i)) + ".md"
		if _, err := v.Enqueue(vault.StagePending, name, vault.Document{Body: "x"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	counts, err := v.CountByStage()
	if err != nil {
		t.Fatalf("CountByStage: %v", err)
	}
	if counts[vault.StagePending] != 3 {
		t.Errorf("Pending_Approval = %d, want 3", counts[vault.StagePending])
	}
	if counts[vault.StageDone] != 0 {
		t.Errorf("Done = %d, want 0", counts[vault.StageDone])
	}
}

func TestAppendDashboard(t *testing.T) {
	v := openVault(t)
	if err := v.AppendDashboard("Processed EMAIL_123: approval requested"); err != nil {
		t.Fatalf("AppendDashboard: %v", err)
	}
	if err := v.AppendDashboard("Completed TASK_9"); err != nil {
		t.Fatalf("AppendDashboard: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(v.Root(), vault.DashboardFileName))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "# Dashboard\n\n## Recent Activity\n") {
		t.Errorf("missing header: %q", text)
	}
	if !strings.Contains(text, "Processed EMAIL_123: approval requested") {
		t.Error("first entry missing")
	}
	if !strings.Contains(text, "Completed TASK_9") {
		t.Error("second entry missing")
	}
}
