package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"valet/internal/audit"
	"valet/internal/logging"
	"valet/internal/schedule"
	"valet/internal/vault"
)

// ReloadSchedules reads the descriptor files under Schedules and swaps
// them into the manager's table. Loading is audited when any descriptors
// register; unparseable files are logged and skipped.
func (m *Manager) ReloadSchedules(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	descriptors, failed, err := schedule.Load(m.store.SchedulesDir())
	if err != nil {
		return err
	}
	for _, name := range failed {
		m.logger.Warn("schedule file unreadable", logging.String(logging.FieldRecord, name))
	}
	m.table.Replace(descriptors)

	if len(descriptors) > 0 {
		if err := m.auditor.Record(audit.Entry{
			ActionType: audit.ActionSchedulesLoaded,
			Target:     "orchestrator",
			Parameters: map[string]string{"job_count": fmt.Sprintf("%d", len(descriptors))},
			Result:     audit.ResultSuccess,
		}); err != nil {
			return err
		}
	}
	return nil
}

// RunDueSchedules fires every descriptor due at the given instant. A task
// that fails is audited as a scheduled_task_error and noted on the
// dashboard; the remaining tasks still run.
func (m *Manager) RunDueSchedules(ctx context.Context, now time.Time) {
	for _, desc := range m.table.Due(now) {
		if ctx.Err() != nil {
			return
		}
		if err := m.runTask(ctx, desc); err != nil {
			m.logger.Error("scheduled task failed",
				logging.String("task", desc.Task),
				logging.Error(err))
			_ = m.auditor.Record(audit.Entry{
				ActionType: audit.ActionScheduledTaskErr,
				Target:     taskTarget(desc),
				Parameters: map[string]string{"error": err.Error()},
				Result:     "error",
			})
			_ = m.store.AppendDashboard(fmt.Sprintf("Failed to run scheduled task %s: %v", desc.Task, err))
		}
	}
}

func (m *Manager) runTask(ctx context.Context, desc schedule.Descriptor) error {
	switch {
	case desc.Task == "linkedin_post":
		return m.runDraftTask(ctx, "linkedin")
	case strings.HasSuffix(desc.Task, "_post"):
		return m.runDraftTask(ctx, strings.TrimSuffix(desc.Task, "_post"))
	case desc.Task == "weekly_ceo_briefing":
		return m.generateBriefing(ctx)
	case desc.Task == "custom":
		return m.createScheduledAction(desc)
	default:
		return fmt.Errorf("no handler for task %q", desc.Task)
	}
}

func (m *Manager) runDraftTask(ctx context.Context, platform string) error {
	if m.drafts == nil {
		return fmt.Errorf("draft generation not wired")
	}
	if _, err := m.drafts.GenerateDraft(ctx, platform); err != nil {
		return err
	}
	return nil
}

// createScheduledAction turns a custom descriptor into an intake record,
// carrying the descriptor body as the action text.
func (m *Manager) createScheduledAction(desc schedule.Descriptor) error {
	now := m.now()
	name := fmt.Sprintf("SCHEDULED_%s_%s.md", strings.TrimSuffix(desc.FileName, ".md"), now.Format("20060102_150405"))
	body := desc.Body
	if strings.TrimSpace(body) == "" {
		body = "Scheduled task. Check the schedule file for details."
	}
	doc := vault.Document{
		Meta: vault.FrontMatter{
			{Key: "type", Value: "scheduled_task"},
			{Key: "task", Value: desc.Task},
			{Key: "created", Value: now.UTC().Format(time.RFC3339)},
			{Key: "status", Value: "pending"},
		},
		Body: body,
	}
	if _, err := m.store.Enqueue(vault.StageIntake, name, doc); err != nil {
		return err
	}
	return m.store.AppendDashboard(fmt.Sprintf("Scheduled task triggered: %s", desc.Task))
}

func taskTarget(desc schedule.Descriptor) string {
	if strings.HasSuffix(desc.Task, "_post") {
		return strings.TrimSuffix(desc.Task, "_post") + "_draft"
	}
	if desc.Task == "weekly_ceo_briefing" {
		return "ceo_briefing"
	}
	return desc.Task
}
