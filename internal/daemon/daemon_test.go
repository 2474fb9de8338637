package daemon_test

import (
	"context"
	"strings"
	"testing"

	"valet/internal/daemon"
	"valet/internal/logging"
	"valet/internal/testsupport"
	"valet/internal/vault"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		input   string
		want    daemon.Role
		wantErr bool
	}{
		{"", daemon.RoleAll, false},
		{"all", daemon.RoleAll, false},
		{"Orchestrator", daemon.RoleOrchestrator, false},
		{" poster ", daemon.RolePoster, false},
		{"watchers", daemon.RoleWatchers, false},
		{"supervisor", daemon.RoleSupervisor, false},
		{"janitor", "", true},
	}
	for _, tc := range cases {
		got, err := daemon.ParseRole(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseRole(%q) expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRole(%q): %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop(), daemon.RoleOrchestrator)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected running daemon")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon still running after Stop")
	}
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := daemon.New(cfg, logging.NewNop(), daemon.RoleOrchestrator)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	second, err := daemon.New(cfg, logging.NewNop(), daemon.RoleOrchestrator)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err = second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start after lock release: %v", err)
	}
	second.Stop()
}

func TestDaemonSweepAndStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop(), daemon.RoleOrchestrator)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	store, err := vault.Open(cfg.Paths.VaultDir)
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	doc := vault.Document{
		Meta: vault.FrontMatter{{Key: "type", Value: "note"}},
		Body: "File the quarterly report",
	}
	if _, err := store.Enqueue(vault.StageIntake, "EMAIL_7.md", doc); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := d.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	status, err := d.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("daemon should not report running before Start")
	}
	if status.StageCounts[vault.StageDone] != 1 {
		t.Fatalf("done count = %d", status.StageCounts[vault.StageDone])
	}
	if status.StageCounts[vault.StageIntake] != 0 {
		t.Fatalf("intake count = %d", status.StageCounts[vault.StageIntake])
	}
	if status.VaultPath != cfg.Paths.VaultDir {
		t.Fatalf("vault path = %q", status.VaultPath)
	}
}
