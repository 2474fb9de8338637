package watcherstate_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"valet/internal/services"
	"valet/internal/watcherstate"
)

func TestOpenEmptyWhenMissing(t *testing.T) {
	store, err := watcherstate.Open(t.TempDir(), "maildir", false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}
	if store.Seen("anything") {
		t.Error("empty ledger reported ID as seen")
	}
}

func TestMarkProcessedPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := watcherstate.Open(dir, "maildir", false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.MarkProcessed("msg-1", "msg-2"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	reopened, err := watcherstate.Open(dir, "maildir", false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.Seen("msg-1") || !reopened.Seen("msg-2") {
		t.Error("persisted IDs not visible after reopen")
	}
	if reopened.Seen("msg-3") {
		t.Error("unexpected ID reported as seen")
	}
}

func TestStateFileNameAndShape(t *testing.T) {
	dir := t.TempDir()
	store, err := watcherstate.Open(dir, "csvdrop", false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.MarkProcessed("row-b", "row-a"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".csvdrop_state.json"))
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"processed_ids"`) {
		t.Errorf("missing processed_ids key: %s", text)
	}
	if strings.Index(text, "row-a") > strings.Index(text, "row-b") {
		t.Errorf("ids not sorted: %s", text)
	}
}

func TestMarkProcessedIdempotent(t *testing.T) {
	store, err := watcherstate.Open(t.TempDir(), "maildir", false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.MarkProcessed("msg-1"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if err := store.MarkProcessed("msg-1", ""); err != nil {
		t.Fatalf("MarkProcessed repeat: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestCorruptStateFailsClosed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".maildir_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt state: %v", err)
	}

	if _, err := watcherstate.Open(dir, "maildir", false); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	store, err := watcherstate.Open(dir, "maildir", true)
	if err != nil {
		t.Fatalf("Open with reset: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0 after reset", store.Len())
	}
}

func TestOpenRequiresName(t *testing.T) {
	if _, err := watcherstate.Open(t.TempDir(), "", false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
