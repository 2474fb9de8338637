package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"valet/internal/fileutil"
)

// Action types recorded in the trail. The values are part of the on-disk
// contract and must stay stable across releases.
const (
	ActionApprovalRequested = "approval_requested"
	ActionAutoProcess       = "auto_process"
	ActionApprovedExecution = "approved_execution"
	ActionScheduledTaskErr  = "scheduled_task_error"
	ActionSchedulesLoaded   = "schedules_loaded"
	ActionSocialDraft       = "social_draft_created"
	ActionSocialPublish     = "social_publish"
	ActionSystemAlert       = "system_alert"
)

// Approval status and result values.
const (
	StatusPending     = "pending"
	StatusNotRequired = "not_required"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"

	ResultQueued   = "queued"
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
	ResultDryRun   = "dry_run"
)

// Entry is one audit trail record.
type Entry struct {
	Timestamp      string            `json:"timestamp"`
	ActionType     string            `json:"action_type"`
	Actor          string            `json:"actor"`
	Target         string            `json:"target"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	ApprovalStatus string            `json:"approval_status,omitempty"`
	ApprovedBy     string            `json:"approved_by,omitempty"`
	Result         string            `json:"result,omitempty"`
}

// Logger appends entries to per-day JSON files under the vault's Logs
// directory. Appends are serialized so concurrent workers in one process
// never interleave a read-modify-write cycle.
type Logger struct {
	dir   string
	actor string
	now   func() time.Time

	mu sync.Mutex
}

// NewLogger returns a Logger writing to dir. Entries without an explicit
// actor are attributed to the given default.
func NewLogger(dir, actor string) *Logger {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "valet"
	}
	return &Logger{dir: dir, actor: actor, now: time.Now}
}

// WithClock overrides the logger's clock. Intended for tests.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// Record appends one entry to today's log file, filling in the timestamp
// and default actor when unset.
func (l *Logger) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// The trail lives in UTC: the day file boundary and the recorded
	// timestamp must not shift with the host timezone.
	now := l.now().UTC()
	if entry.Timestamp == "" {
		entry.Timestamp = now.Format(time.RFC3339)
	}
	if entry.Actor == "" {
		entry.Actor = l.actor
	}
	if entry.ActionType == "" {
		return errors.New("audit entry missing action type")
	}

	path := l.pathFor(now)
	entries, err := readEntries(path)
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode audit log: %w", err)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, payload, 0o644); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Entries returns the audit records for a given day, oldest first. A day
// with no log file yields an empty slice.
func (l *Logger) Entries(day time.Time) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return readEntries(l.pathFor(day))
}

func (l *Logger) pathFor(day time.Time) string {
	return filepath.Join(l.dir, day.UTC().Format("2006-01-02")+".json")
}

func readEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode audit log %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}
