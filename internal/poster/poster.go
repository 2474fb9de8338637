// Package poster manages the social posting workflow: it drafts posts
// into Pending_Approval on schedule and publishes drafts the owner has
// moved to Approved. Nothing is ever published without a draft passing
// through the approval stages.
package poster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"valet/internal/audit"
	"valet/internal/fileutil"
	"valet/internal/logging"
	"valet/internal/notifications"
	"valet/internal/pidfile"
	"valet/internal/publisher"
	"valet/internal/services"
	"valet/internal/vault"
)

const (
	draftPrefix    = "SOCIAL_DRAFT_"
	contentMarker  = "## Post Content"
	summaryHeader  = "# Social Posting Summary\n\n"
	fallbackGoal   = "Build momentum this week"
	goalsFileName  = "Business_Goals.md"
	previewInChars = 80
)

// Poster drafts and publishes social posts.
type Poster struct {
	store    *vault.Vault
	auditor  *audit.Logger
	client   *publisher.Client
	notifier notifications.Service
	logger   *slog.Logger
	interval time.Duration
	pidDir   string
	now      func() time.Time
}

// New assembles a Poster.
func New(store *vault.Vault, auditor *audit.Logger, client *publisher.Client, notifier notifications.Service, logger *slog.Logger, interval time.Duration, pidDir string) *Poster {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poster{
		store:    store,
		auditor:  auditor,
		client:   client,
		notifier: notifier,
		logger:   logger.With(logging.String(logging.FieldComponent, "poster")),
		interval: interval,
		pidDir:   pidDir,
		now:      time.Now,
	}
}

// WithClock overrides the poster's clock. Intended for tests.
func (p *Poster) WithClock(now func() time.Time) *Poster {
	p.now = now
	return p
}

// GenerateDraft writes a post draft for the given platform into
// Pending_Approval and records social_draft_created. The draft leads with
// the first goal found in the vault's Business_Goals.md.
func (p *Poster) GenerateDraft(ctx context.Context, platform string) (*vault.Record, error) {
	platform = strings.TrimSpace(platform)
	if platform == "" {
		return nil, services.Wrap(services.ErrValidation, "poster", "draft", "platform required", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := p.now()
	name := fmt.Sprintf("%s%s_%s.md", draftPrefix, platform, now.UTC().Format("20060102_150405"))
	doc := vault.Document{
		Meta: vault.FrontMatter{
			{Key: "type", Value: "social_post"},
			{Key: "platform", Value: platform},
			{Key: "status", Value: "pending_approval"},
			{Key: "action", Value: "publish_social"},
			{Key: "created", Value: now.UTC().Format(time.RFC3339)},
		},
		Body: p.draftBody(),
	}
	rec, err := p.store.Enqueue(vault.StagePending, name, doc)
	if err != nil {
		return nil, err
	}

	if err := p.auditor.Record(audit.Entry{
		ActionType: audit.ActionSocialDraft,
		Target:     platform,
		Parameters: map[string]string{"draft_file": name},
		Result:     "pending_approval",
	}); err != nil {
		return rec, err
	}
	_ = p.store.AppendDashboard(fmt.Sprintf("Scheduled %s draft created for approval", platform))
	p.logger.Info("draft created",
		logging.String(logging.FieldRecord, name),
		logging.String("platform", platform))
	return rec, nil
}

// SweepApproved publishes every approved social draft and archives it to
// Done. A draft that fails to publish stays in Approved for the next
// sweep, with the failure audited and notified.
func (p *Poster) SweepApproved(ctx context.Context) (int, error) {
	records, err := p.store.Scan(vault.StageApproved)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, rec := range records {
		if !strings.HasPrefix(rec.Name, draftPrefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if err := p.publishOne(ctx, rec); err != nil {
			p.logger.Error("publish failed",
				logging.String(logging.FieldRecord, rec.Name),
				logging.Error(err))
			continue
		}
		published++
	}
	return published, nil
}

// Run sweeps Approved on the configured interval until the context is
// canceled.
func (p *Poster) Run(ctx context.Context) error {
	pidPath := filepath.Join(p.pidDir, "poster.pid")
	if err := pidfile.WriteSelf(pidPath); err != nil {
		return err
	}
	defer func() {
		_ = pidfile.Remove(pidPath)
	}()

	p.logger.Info("poster started", logging.Duration("interval", p.interval))
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if count, err := p.SweepApproved(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("sweep failed", logging.Error(err))
		} else if count > 0 {
			p.logger.Info("sweep complete", logging.Int("published", count))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("poster stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poster) publishOne(ctx context.Context, rec *vault.Record) error {
	platform := strings.TrimSpace(rec.Meta["platform"])
	if platform == "" {
		platform = "unknown"
	}
	text := ExtractPostText(rec.Body)

	result, err := p.client.Publish(ctx, platform, text)
	if err != nil {
		_ = p.auditor.Record(audit.Entry{
			ActionType: audit.ActionSocialPublish,
			Target:     platform,
			Parameters: map[string]string{"file": rec.Name},
			Result:     fmt.Sprintf("error: %v", err),
		})
		_ = p.notifier.NotifyPublishFailed(ctx, rec.Name, err)
		return err
	}

	if err := p.auditor.Record(audit.Entry{
		ActionType:     audit.ActionSocialPublish,
		Target:         platform,
		Parameters:     map[string]string{"file": rec.Name, "preview": publisher.Preview(text)},
		Result:         result,
		ApprovalStatus: audit.StatusApproved,
		ApprovedBy:     "human",
	}); err != nil {
		return err
	}
	if err := p.appendSummary(platform, text, result); err != nil {
		return err
	}
	if err := p.store.Advance(rec, vault.StageApproved, vault.StageDone); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil
		}
		return err
	}
	p.logger.Info("draft published",
		logging.String(logging.FieldRecord, rec.Name),
		logging.String("platform", platform),
		logging.String("result", result))
	return nil
}

func (p *Poster) draftBody() string {
	goal := fallbackGoal
	if data, err := os.ReadFile(filepath.Join(p.store.Root(), goalsFileName)); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "-") {
				goal = line
				break
			}
		}
	}

	var b strings.Builder
	b.WriteString(contentMarker)
	b.WriteString("\n\n")
	b.WriteString(goal)
	b.WriteString("\n\n")
	b.WriteString("We are building practical automation for real businesses. Follow for weekly updates.\n\n")
	b.WriteString("#AI #Automation #Business #BuildInPublic\n\n")
	b.WriteString("---\n")
	b.WriteString("Move this file to `/Approved` to publish or `/Rejected` to discard.")
	return b.String()
}

func (p *Poster) appendSummary(platform, text, status string) error {
	now := p.now()
	path := filepath.Join(p.store.BriefingsDir(), now.Format("2006-01-02")+"_Social_Posting_Summary.md")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := fileutil.WriteFileAtomic(path, []byte(summaryHeader), 0o644); err != nil {
			return fmt.Errorf("create posting summary: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open posting summary: %w", err)
	}
	defer file.Close()

	preview := strings.TrimSpace(text)
	if utf8.RuneCountInString(preview) > previewInChars {
		preview = string([]rune(preview)[:previewInChars])
	}
	line := fmt.Sprintf("- [%s] %s: %s - %s\n", now.Format("15:04"), platform, status, preview)
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("append posting summary: %w", err)
	}
	return nil
}

// IsDraft reports whether a record name is a social draft.
func IsDraft(name string) bool {
	return strings.HasPrefix(name, draftPrefix)
}

// ExtractPostText returns the publishable text of a draft: everything
// between the post content marker and the trailing divider.
func ExtractPostText(body string) string {
	idx := strings.Index(body, contentMarker)
	if idx < 0 {
		return strings.TrimSpace(body)
	}
	text := body[idx+len(contentMarker):]
	if cut := strings.Index(text, "---"); cut >= 0 {
		text = text[:cut]
	}
	return strings.TrimSpace(text)
}
