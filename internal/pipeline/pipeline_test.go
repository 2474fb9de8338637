package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"valet/internal/audit"
	"valet/internal/config"
	"valet/internal/logging"
	"valet/internal/notifications"
	"valet/internal/pipeline"
	"valet/internal/vault"
)

type fakeDrafts struct {
	platforms []string
	fail      bool
}

func (f *fakeDrafts) GenerateDraft(_ context.Context, platform string) (*vault.Record, error) {
	if f.fail {
		return nil, os.ErrPermission
	}
	f.platforms = append(f.platforms, platform)
	return &vault.Record{Name: "SOCIAL_DRAFT_" + platform + ".md"}, nil
}

func newManager(t *testing.T) (*pipeline.Manager, *vault.Vault, *audit.Logger, *fakeDrafts) {
	t.Helper()
	store, err := vault.Open(t.TempDir())
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	cfg := config.Default()
	cfg.Paths.VaultDir = store.Root()
	cfg.Paths.PidDir = t.TempDir()
	auditor := audit.NewLogger(store.LogsDir(), "valet")
	drafts := &fakeDrafts{}
	m := pipeline.NewManager(&cfg, store, auditor, notifications.NewService(&cfg), drafts, logging.NewNop())
	return m, store, auditor, drafts
}

func enqueueEmail(t *testing.T, store *vault.Vault, name, subject, body string) {
	t.Helper()
	doc := vault.Document{
		Meta: vault.FrontMatter{
			{Key: "type", Value: "email"},
			{Key: "subject", Value: subject},
			{Key: "status", Value: "pending"},
		},
		Body: body,
	}
	if _, err := store.Enqueue(vault.StageIntake, name, doc); err != nil {
		t.Fatalf("Enqueue %s: %v", name, err)
	}
}

func TestSweepIntakeSensitiveRecord(t *testing.T) {
	m, store, auditor, _ := newManager(t)
	ctx := context.Background()
	enqueueEmail(t, store, "EMAIL_123.md", "Q3 invoice", "Please send the Q3 invoice by Friday.")

	if err := m.SweepIntake(ctx); err != nil {
		t.Fatalf("SweepIntake: %v", err)
	}

	if store.Exists(vault.StageIntake, "EMAIL_123.md") {
		t.Error("record still in Needs_Action")
	}
	if !store.Exists(vault.StageDone, "EMAIL_123.md") {
		t.Error("record not archived to Done")
	}

	plans, err := store.Scan(vault.StagePlans)
	if err != nil {
		t.Fatalf("Scan plans: %v", err)
	}
	if len(plans) != 1 || !strings.HasPrefix(plans[0].Name, "PLAN_EMAIL_123_") {
		t.Fatalf("plans = %v", recordNames(plans))
	}
	if plans[0].Meta["source"] != "EMAIL_123.md" {
		t.Errorf("plan source = %q", plans[0].Meta["source"])
	}
	if !strings.Contains(plans[0].Body, "Process `EMAIL_123.md`") {
		t.Errorf("plan body = %q", plans[0].Body)
	}

	approvals, err := store.Scan(vault.StagePending)
	if err != nil {
		t.Fatalf("Scan pending: %v", err)
	}
	if len(approvals) != 1 || !strings.HasPrefix(approvals[0].Name, "APPROVAL_EMAIL_123_") {
		t.Fatalf("approvals = %v", recordNames(approvals))
	}
	approval := approvals[0]
	if approval.Meta["type"] != "approval_request" || approval.Meta["reason"] != "Sensitive action detected" {
		t.Errorf("approval meta = %#v", approval.Meta)
	}

	entries, err := auditor.Entries(time.Now())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %#v", entries)
	}
	entry := entries[0]
	if entry.ActionType != audit.ActionApprovalRequested || entry.Target != "EMAIL_123.md" {
		t.Errorf("entry = %#v", entry)
	}
	if entry.ApprovalStatus != audit.StatusPending || entry.Result != audit.ResultQueued {
		t.Errorf("entry status = %q result = %q", entry.ApprovalStatus, entry.Result)
	}
	if entry.Parameters["approval_file"] != approval.Name {
		t.Errorf("approval_file = %q, want %q", entry.Parameters["approval_file"], approval.Name)
	}

	dashboard, err := os.ReadFile(filepath.Join(store.Root(), vault.DashboardFileName))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	if !strings.Contains(string(dashboard), "Approval requested for EMAIL_123.md") {
		t.Errorf("dashboard = %q", dashboard)
	}
}

func TestSweepIntakeBenignRecordAutoProcesses(t *testing.T) {
	m, store, auditor, _ := newManager(t)
	enqueueEmail(t, store, "NOTE_1.md", "Standup", "Notes from today's standup.")

	if err := m.SweepIntake(context.Background()); err != nil {
		t.Fatalf("SweepIntake: %v", err)
	}

	pending, err := store.CountByStage()
	if err != nil {
		t.Fatalf("CountByStage: %v", err)
	}
	if pending[vault.StagePending] != 0 {
		t.Error("benign record generated an approval request")
	}
	if pending[vault.StageDone] != 1 {
		t.Errorf("Done = %d, want 1", pending[vault.StageDone])
	}

	entries, err := auditor.Entries(time.Now())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ActionType != audit.ActionAutoProcess {
		t.Fatalf("entries = %#v", entries)
	}
	if entries[0].ApprovalStatus != audit.StatusNotRequired {
		t.Errorf("approval_status = %q", entries[0].ApprovalStatus)
	}
}

func TestSweepIntakeSecondPassIsNoop(t *testing.T) {
	m, store, auditor, _ := newManager(t)
	ctx := context.Background()
	enqueueEmail(t, store, "EMAIL_9.md", "transfer request", "Wire transfer to vendor.")

	if err := m.SweepIntake(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if err := m.SweepIntake(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	plans, _ := store.Scan(vault.StagePlans)
	approvals, _ := store.Scan(vault.StagePending)
	if len(plans) != 1 || len(approvals) != 1 {
		t.Errorf("second sweep duplicated artifacts: %d plans, %d approvals", len(plans), len(approvals))
	}
	entries, err := auditor.Entries(time.Now())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("second sweep appended audit entries: %#v", entries)
	}
}

func TestSweepApprovedExecutesAndArchives(t *testing.T) {
	m, store, auditor, _ := newManager(t)
	if _, err := store.Enqueue(vault.StageApproved, "APPROVAL_EMAIL_123_X.md", vault.Document{Body: "go"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// Social drafts belong to the poster.
	if _, err := store.Enqueue(vault.StageApproved, "SOCIAL_DRAFT_linkedin_X.md", vault.Document{Body: "post"}); err != nil {
		t.Fatalf("Enqueue draft: %v", err)
	}

	if err := m.SweepApproved(context.Background()); err != nil {
		t.Fatalf("SweepApproved: %v", err)
	}

	if !store.Exists(vault.StageDone, "APPROVAL_EMAIL_123_X.md") {
		t.Error("approved record not archived")
	}
	if !store.Exists(vault.StageApproved, "SOCIAL_DRAFT_linkedin_X.md") {
		t.Error("social draft moved by pipeline")
	}

	entries, err := auditor.Entries(time.Now())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %#v", entries)
	}
	entry := entries[0]
	if entry.ActionType != audit.ActionApprovedExecution || entry.ApprovedBy != "human" {
		t.Errorf("entry = %#v", entry)
	}
	if entry.ApprovalStatus != audit.StatusApproved || entry.Result != audit.ResultSuccess {
		t.Errorf("entry status = %q result = %q", entry.ApprovalStatus, entry.Result)
	}
}

func TestSweepRejectedArchivesWithoutExecution(t *testing.T) {
	m, store, auditor, _ := newManager(t)
	if _, err := store.Enqueue(vault.StageRejected, "APPROVAL_EMAIL_9_X.md", vault.Document{Body: "no"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := m.SweepRejected(context.Background()); err != nil {
		t.Fatalf("SweepRejected: %v", err)
	}
	if !store.Exists(vault.StageDone, "APPROVAL_EMAIL_9_X.md") {
		t.Error("rejected record not archived")
	}

	entries, err := auditor.Entries(time.Now())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %#v", entries)
	}
	if entries[0].Result != audit.ResultRejected || entries[0].ApprovalStatus != audit.StatusRejected {
		t.Errorf("entry = %#v", entries[0])
	}
}

func TestScheduledDraftTaskFires(t *testing.T) {
	m, store, _, drafts := newManager(t)
	ctx := context.Background()

	scheduleFile := "---\ntask: linkedin_post\ntime: \"09:00\"\ndays: monday\n---\n"
	if err := os.WriteFile(filepath.Join(store.SchedulesDir(), "linkedin.md"), []byte(scheduleFile), 0o644); err != nil {
		t.Fatalf("write schedule: %v", err)
	}
	if err := m.ReloadSchedules(ctx); err != nil {
		t.Fatalf("ReloadSchedules: %v", err)
	}

	// 2026-03-02 is a Monday.
	m.RunDueSchedules(ctx, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	if len(drafts.platforms) != 1 || drafts.platforms[0] != "linkedin" {
		t.Errorf("platforms = %v", drafts.platforms)
	}
}

func TestScheduledTaskFailureIsAudited(t *testing.T) {
	m, store, auditor, drafts := newManager(t)
	drafts.fail = true
	ctx := context.Background()

	scheduleFile := "---\ntask: twitter_post\ntime: \"09:00\"\ndays: monday\n---\n"
	if err := os.WriteFile(filepath.Join(store.SchedulesDir(), "twitter.md"), []byte(scheduleFile), 0o644); err != nil {
		t.Fatalf("write schedule: %v", err)
	}
	if err := m.ReloadSchedules(ctx); err != nil {
		t.Fatalf("ReloadSchedules: %v", err)
	}
	m.RunDueSchedules(ctx, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	entries, err := auditor.Entries(time.Now())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	found := false
	for _, entry := range entries {
		if entry.ActionType == audit.ActionScheduledTaskErr && entry.Target == "twitter_draft" {
			found = true
		}
	}
	if !found {
		t.Errorf("no scheduled_task_error entry in %#v", entries)
	}
}

func TestCustomScheduleCreatesIntakeRecord(t *testing.T) {
	m, store, _, _ := newManager(t)
	ctx := context.Background()

	scheduleFile := "---\ntask: custom\nfrequency: daily\ntime: \"07:00\"\n---\n\nReview yesterday's metrics.\n"
	if err := os.WriteFile(filepath.Join(store.SchedulesDir(), "metrics.md"), []byte(scheduleFile), 0o644); err != nil {
		t.Fatalf("write schedule: %v", err)
	}
	if err := m.ReloadSchedules(ctx); err != nil {
		t.Fatalf("ReloadSchedules: %v", err)
	}
	m.RunDueSchedules(ctx, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC))

	records, err := store.Scan(vault.StageIntake)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 1 || !strings.HasPrefix(records[0].Name, "SCHEDULED_metrics_") {
		t.Fatalf("records = %v", recordNames(records))
	}
	rec := records[0]
	if rec.Meta["type"] != "scheduled_task" || rec.Meta["task"] != "custom" {
		t.Errorf("meta = %#v", rec.Meta)
	}
	if !strings.Contains(rec.Body, "Review yesterday's metrics.") {
		t.Errorf("body = %q", rec.Body)
	}
}

func TestBriefingTaskWritesWeeklySummary(t *testing.T) {
	m, store, auditor, _ := newManager(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 6, 9, 30, 0, 0, time.UTC)
	m.WithClock(func() time.Time { return day })
	auditor.WithClock(func() time.Time { return day })

	if err := auditor.Record(audit.Entry{ActionType: audit.ActionAutoProcess, Target: "NOTE_1.md"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	scheduleFile := "---\ntask: weekly_ceo_briefing\ntime: \"09:00\"\ndays: friday\n---\n"
	if err := os.WriteFile(filepath.Join(store.SchedulesDir(), "briefing.md"), []byte(scheduleFile), 0o644); err != nil {
		t.Fatalf("write schedule: %v", err)
	}
	if err := m.ReloadSchedules(ctx); err != nil {
		t.Fatalf("ReloadSchedules: %v", err)
	}
	// 2026-03-06 is a Friday.
	m.RunDueSchedules(ctx, day)

	briefing, err := os.ReadFile(filepath.Join(store.BriefingsDir(), "2026-03-06_CEO_Briefing.md"))
	if err != nil {
		t.Fatalf("read briefing: %v", err)
	}
	text := string(briefing)
	if !strings.Contains(text, "# CEO Briefing: week of 2026-03-06") {
		t.Errorf("briefing = %q", text)
	}
	if !strings.Contains(text, "auto_process: 1") {
		t.Errorf("briefing missing activity: %q", text)
	}
}

func TestStartStop(t *testing.T) {
	m, store, _, _ := newManager(t)
	enqueueEmail(t, store, "EMAIL_1.md", "hello", "Notes only.")

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start did not fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Exists(vault.StageDone, "EMAIL_1.md") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.Stop()

	if !store.Exists(vault.StageDone, "EMAIL_1.md") {
		t.Error("background sweep did not process intake record")
	}
	if m.Running() {
		t.Error("manager still running after Stop")
	}
}

func recordNames(records []*vault.Record) []string {
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.Name
	}
	return names
}
