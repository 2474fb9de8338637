package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"valet/internal/fileutil"
	"valet/internal/vault"
)

// generateBriefing writes the weekly status briefing into Briefings: the
// current stage counts plus a digest of the last seven days of audit
// activity.
func (m *Manager) generateBriefing(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := m.now()
	counts, err := m.store.CountByStage()
	if err != nil {
		return err
	}

	actionTotals := make(map[string]int)
	for back := 0; back < 7; back++ {
		entries, err := m.auditor.Entries(now.AddDate(0, 0, -back))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			actionTotals[entry.ActionType]++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# CEO Briefing: week of %s\n\n", now.Format("2006-01-02"))
	b.WriteString("## Pipeline\n")
	for _, stage := range vault.Stages() {
		fmt.Fprintf(&b, "- %s: %d\n", stage, counts[stage])
	}
	b.WriteString("\n## Activity (last 7 days)\n")
	if len(actionTotals) == 0 {
		b.WriteString("- no recorded activity\n")
	}
	for _, action := range []string{
		"approval_requested", "auto_process", "approved_execution",
		"social_draft_created", "social_publish", "scheduled_task_error", "system_alert",
	} {
		if n := actionTotals[action]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", action, n)
		}
	}

	path := filepath.Join(m.store.BriefingsDir(), now.Format("2006-01-02")+"_CEO_Briefing.md")
	if err := fileutil.WriteFileAtomic(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write briefing: %w", err)
	}
	return m.store.AppendDashboard(fmt.Sprintf("Weekly CEO briefing generated: %s", filepath.Base(path)))
}
