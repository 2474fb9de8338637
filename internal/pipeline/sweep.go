package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"valet/internal/audit"
	"valet/internal/classify"
	"valet/internal/logging"
	"valet/internal/poster"
	"valet/internal/services"
	"valet/internal/vault"
)

const approvalReason = "Sensitive action detected"

// sweepIntake processes every record in Needs_Action: a plan is drafted
// for each, sensitive records additionally get an approval request, and
// the record itself moves to Done. Failures on one record are logged and
// audited without stopping the sweep, so a poisoned record cannot stall
// the pipeline.
func (m *Manager) sweepIntake(ctx context.Context, logger *slog.Logger) error {
	records, err := m.store.Scan(vault.StageIntake)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.processIntake(ctx, logger, rec); err != nil {
			if services.IsBenignRace(err) {
				continue
			}
			logger.Error("intake record failed",
				logging.String(logging.FieldRecord, rec.Name),
				logging.Error(err))
		}
	}
	return nil
}

func (m *Manager) processIntake(ctx context.Context, logger *slog.Logger, rec *vault.Record) error {
	if rec.ParseErr != nil {
		logger.Warn("record front matter unreadable, classifying body only",
			logging.String(logging.FieldRecord, rec.Name),
			logging.Error(rec.ParseErr))
	}

	if _, err := m.createPlan(rec); err != nil {
		return err
	}

	needed, keyword := classify.RequiresApproval(classifiableText(rec))
	if needed {
		approvalName, err := m.createApproval(rec, approvalReason)
		if err != nil {
			return err
		}
		if err := m.auditor.Record(audit.Entry{
			ActionType:     audit.ActionApprovalRequested,
			Target:         rec.Name,
			Parameters:     map[string]string{"approval_file": approvalName, "keyword": keyword},
			Result:         audit.ResultQueued,
			ApprovalStatus: audit.StatusPending,
		}); err != nil {
			return err
		}
		_ = m.store.AppendDashboard(fmt.Sprintf("Approval requested for %s", rec.Name))
		_ = m.notifier.NotifyApprovalPending(ctx, rec.Name, approvalReason)
	} else {
		if err := m.auditor.Record(audit.Entry{
			ActionType:     audit.ActionAutoProcess,
			Target:         rec.Name,
			Parameters:     map[string]string{},
			Result:         audit.ResultSuccess,
			ApprovalStatus: audit.StatusNotRequired,
		}); err != nil {
			return err
		}
		_ = m.store.AppendDashboard(fmt.Sprintf("Auto-processed %s", rec.Name))
	}

	return m.store.Advance(rec, vault.StageIntake, vault.StageDone)
}

// sweepApproved executes the owner's approvals: each record in Approved is
// audited as an approved execution and archived to Done. Social drafts are
// the poster's to publish and are left alone here.
func (m *Manager) sweepApproved(ctx context.Context, logger *slog.Logger) error {
	records, err := m.store.Scan(vault.StageApproved)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if poster.IsDraft(rec.Name) {
			continue
		}
		if err := m.auditor.Record(audit.Entry{
			ActionType:     audit.ActionApprovedExecution,
			Target:         rec.Name,
			Parameters:     map[string]string{},
			Result:         audit.ResultSuccess,
			ApprovalStatus: audit.StatusApproved,
			ApprovedBy:     "human",
		}); err != nil {
			return err
		}
		_ = m.store.AppendDashboard(fmt.Sprintf("Approved action executed: %s", rec.Name))
		if err := m.store.Advance(rec, vault.StageApproved, vault.StageDone); err != nil && !services.IsBenignRace(err) {
			return err
		}
	}
	return nil
}

// sweepRejected archives the owner's rejections to Done with a rejected
// audit trail entry. Nothing is executed.
func (m *Manager) sweepRejected(ctx context.Context, logger *slog.Logger) error {
	records, err := m.store.Scan(vault.StageRejected)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.auditor.Record(audit.Entry{
			ActionType:     audit.ActionApprovedExecution,
			Target:         rec.Name,
			Parameters:     map[string]string{},
			Result:         audit.ResultRejected,
			ApprovalStatus: audit.StatusRejected,
			ApprovedBy:     "human",
		}); err != nil {
			return err
		}
		_ = m.store.AppendDashboard(fmt.Sprintf("Rejected action archived: %s", rec.Name))
		if err := m.store.Advance(rec, vault.StageRejected, vault.StageDone); err != nil && !services.IsBenignRace(err) {
			return err
		}
	}
	return nil
}

func (m *Manager) createPlan(rec *vault.Record) (string, error) {
	now := m.now()
	name := fmt.Sprintf("PLAN_%s_%s.md", rec.ID, now.Format("20060102_150405"))
	doc := vault.Document{
		Meta: vault.FrontMatter{
			{Key: "created", Value: now.UTC().Format(time.RFC3339)},
			{Key: "status", Value: "pending"},
			{Key: "source", Value: rec.Name},
		},
		Body: planBody(rec.Name),
	}
	if _, err := m.store.Enqueue(vault.StagePlans, name, doc); err != nil {
		return "", err
	}
	return name, nil
}

func (m *Manager) createApproval(rec *vault.Record, reason string) (string, error) {
	now := m.now()
	name := fmt.Sprintf("APPROVAL_%s_%s.md", rec.ID, now.Format("20060102_150405"))
	doc := vault.Document{
		Meta: vault.FrontMatter{
			{Key: "type", Value: "approval_request"},
			{Key: "action", Value: "review_and_execute"},
			{Key: "source", Value: rec.Name},
			{Key: "reason", Value: reason},
			{Key: "status", Value: "pending"},
		},
		Body: "Move this file to `/Approved` to proceed or `/Rejected` to cancel.",
	}
	if _, err := m.store.Enqueue(vault.StagePending, name, doc); err != nil {
		return "", err
	}
	return name, nil
}

func planBody(sourceName string) string {
	var b strings.Builder
	b.WriteString("## Objective\n")
	fmt.Fprintf(&b, "Process `%s` and complete required actions.\n\n", sourceName)
	b.WriteString("## Steps\n")
	b.WriteString("- [x] Read source file\n")
	b.WriteString("- [ ] Determine if approval is required\n")
	b.WriteString("- [ ] Execute or queue action\n")
	b.WriteString("- [ ] Move artifacts to `/Done`")
	return b.String()
}

// classifiableText joins the record body with its front matter values so a
// sensitive keyword hiding in a subject line still flags.
func classifiableText(rec *vault.Record) string {
	parts := make([]string, 0, len(rec.Meta)+1)
	parts = append(parts, rec.Body)
	for _, value := range rec.Meta {
		parts = append(parts, value)
	}
	return strings.Join(parts, "\n")
}
