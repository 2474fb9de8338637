package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"valet/internal/config"
	"valet/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyWorkerRestarted(context.Background(), "orchestrator", 42); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, sink *[]captured) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*sink = append(*sink, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
}

func newTestService(t *testing.T, endpoint string) notifications.Service {
	t.Helper()
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = endpoint
	cfg.Notifications.Restarts = true
	cfg.Notifications.Approvals = true
	cfg.Notifications.Errors = true
	return notifications.NewService(&cfg)
}

func TestNtfyServiceFormatsEvents(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)
	defer server.Close()
	svc := newTestService(t, server.URL)
	ctx := context.Background()

	if err := svc.NotifyWorkerRestarted(ctx, "poster", 99); err != nil {
		t.Fatalf("NotifyWorkerRestarted: %v", err)
	}
	if err := svc.NotifyApprovalPending(ctx, "APPROVAL_EMAIL_123.md", "sensitive keyword detected"); err != nil {
		t.Fatalf("NotifyApprovalPending: %v", err)
	}
	if err := svc.NotifyPublishFailed(ctx, "SOCIAL_DRAFT_1.md", errors.New("endpoint timeout")); err != nil {
		t.Fatalf("NotifyPublishFailed: %v", err)
	}

	if len(sink) != 3 {
		t.Fatalf("got %d requests, want 3", len(sink))
	}
	restart := sink[0]
	if restart.title != "Valet - Worker Restarted" || restart.priority != "high" {
		t.Errorf("restart notification = %#v", restart)
	}
	if restart.body != "Restarted poster (pid 99)" {
		t.Errorf("restart body = %q", restart.body)
	}
	approval := sink[1]
	if approval.title != "Valet - Approval Pending" || approval.tags != "valet,approval,pending" {
		t.Errorf("approval notification = %#v", approval)
	}
	publish := sink[2]
	if publish.body != "Could not publish SOCIAL_DRAFT_1.md: endpoint timeout" {
		t.Errorf("publish body = %q", publish.body)
	}
}

func TestNtfyServiceRespectsCategoryToggles(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Restarts = false
	cfg.Notifications.Approvals = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyWorkerRestarted(ctx, "watcher", 7); err != nil {
		t.Fatalf("NotifyWorkerRestarted: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "sweep"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	if len(sink) != 0 {
		t.Errorf("got %d requests, want 0 with toggles off", len(sink))
	}
}

func TestNtfyServiceSurfacesHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic not found", http.StatusNotFound)
	}))
	defer server.Close()
	svc := newTestService(t, server.URL)

	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error from 404 response")
	}
}
