package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"valet/internal/config"
)

const userAgent = "Valet-Go/0.1.0"

// Service defines the notification surface exposed to the workers.
type Service interface {
	NotifyWorkerRestarted(ctx context.Context, worker string, pid int) error
	NotifyApprovalPending(ctx context.Context, recordName, reason string) error
	NotifyPublishFailed(ctx context.Context, draftName string, err error) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		restarts:  cfg.Notifications.Restarts,
		approvals: cfg.Notifications.Approvals,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	restarts  bool
	approvals bool
	errors    bool
}

func (n *ntfyService) NotifyWorkerRestarted(ctx context.Context, worker string, pid int) error {
	if !n.restarts {
		return nil
	}
	worker = strings.TrimSpace(worker)
	data := payload{
		title:    "Valet - Worker Restarted",
		message:  fmt.Sprintf("Restarted %s (pid %d)", worker, pid),
		tags:     []string{"valet", "supervisor", "restart"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyApprovalPending(ctx context.Context, recordName, reason string) error {
	if !n.approvals {
		return nil
	}
	recordName = strings.TrimSpace(recordName)
	message := fmt.Sprintf("Approval needed: %s", recordName)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, reason)
	}
	data := payload{
		title:   "Valet - Approval Pending",
		message: message,
		tags:    []string{"valet", "approval", "pending"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPublishFailed(ctx context.Context, draftName string, err error) error {
	if !n.errors {
		return nil
	}
	draftName = strings.TrimSpace(draftName)
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Valet - Publish Failed",
		message:  fmt.Sprintf("Could not publish %s: %s", draftName, detail),
		tags:     []string{"valet", "publish", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Valet - Error",
		message:  builder.String(),
		tags:     []string{"valet", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Valet - Test",
		message:  "Notification system test",
		tags:     []string{"valet", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyWorkerRestarted(context.Context, string, int) error    { return nil }
func (noopService) NotifyApprovalPending(context.Context, string, string) error { return nil }
func (noopService) NotifyPublishFailed(context.Context, string, error) error    { return nil }
func (noopService) NotifyError(context.Context, error, string) error            { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
