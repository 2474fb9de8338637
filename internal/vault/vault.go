package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"valet/internal/fileutil"
	"valet/internal/services"
)

// Stage names a lifecycle directory inside the vault. A record's stage is
// its physical location; relocation between stages is the only state
// transition.
type Stage string

const (
	StageIntake   Stage = "Needs_Action"
	StagePlans    Stage = "Plans"
	StagePending  Stage = "Pending_Approval"
	StageApproved Stage = "Approved"
	StageRejected Stage = "Rejected"
	StageDone     Stage = "Done"
)

// Stages returns the ordered list of lifecycle stages.
func Stages() []Stage {
	return []Stage{StageIntake, StagePlans, StagePending, StageApproved, StageRejected, StageDone}
}

// Non-stage directories that complete the vault layout.
const (
	LogsDirName       = "Logs"
	SchedulesDirName  = "Schedules"
	InboxDirName      = "Inbox"
	AccountingDirName = "Accounting"
	DropsDirName      = "Drops"
	BriefingsDirName  = "Briefings"
	DashboardFileName = "Dashboard.md"
)

const dashboardHeader = "# Dashboard\n\n## Recent Activity\n"

// Vault is the root directory tree acting as the system's sole durable
// store: queue stages, audit logs, watcher state, and dashboards all live
// underneath it.
type Vault struct {
	root string
}

// Open binds a Vault to a root directory and creates the full layout.
func Open(root string) (*Vault, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "vault", "open", "vault root not configured", nil)
	}
	v := &Vault{root: root}
	if err := v.EnsureLayout(); err != nil {
		return nil, err
	}
	return v, nil
}

// Root returns the vault root directory.
func (v *Vault) Root() string { return v.root }

// StageDir returns the absolute directory for a stage.
func (v *Vault) StageDir(stage Stage) string {
	return filepath.Join(v.root, string(stage))
}

// LogsDir returns the audit log directory.
func (v *Vault) LogsDir() string { return filepath.Join(v.root, LogsDirName) }

// SchedulesDir returns the schedule descriptor directory.
func (v *Vault) SchedulesDir() string { return filepath.Join(v.root, SchedulesDirName) }

// InboxDir returns the file drop inbox.
func (v *Vault) InboxDir() string { return filepath.Join(v.root, InboxDirName) }

// DropsDir returns the CSV drop directory.
func (v *Vault) DropsDir() string {
	return filepath.Join(v.root, AccountingDirName, DropsDirName)
}

// AccountingDir returns the accounting directory.
func (v *Vault) AccountingDir() string { return filepath.Join(v.root, AccountingDirName) }

// BriefingsDir returns the briefing summary directory.
func (v *Vault) BriefingsDir() string { return filepath.Join(v.root, BriefingsDirName) }

// EnsureLayout creates every stage and supporting directory.
func (v *Vault) EnsureLayout() error {
	dirs := make([]string, 0, len(Stages())+5)
	for _, stage := range Stages() {
		dirs = append(dirs, v.StageDir(stage))
	}
	dirs = append(dirs, v.LogsDir(), v.SchedulesDir(), v.InboxDir(), v.DropsDir(), v.BriefingsDir())
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create vault directory %q: %w", dir, err)
		}
	}
	return nil
}

// Enqueue writes a new record document into a stage. The write is atomic so
// concurrent scans never observe a partial record.
func (v *Vault) Enqueue(stage Stage, name string, doc Document) (*Record, error) {
	dir := v.StageDir(stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create stage %s: %w", stage, err)
	}
	payload, err := doc.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := fileutil.WriteFileAtomic(path, payload, 0o644); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", name, err)
	}
	return &Record{
		ID:    stem(name),
		Name:  name,
		Stage: stage,
		Path:  path,
		Meta:  doc.Meta.asMap(),
		Body:  doc.Body,
	}, nil
}

// Advance relocates a record between stages. The move is a single rename
// (copy+verify+delete across volumes), so readers see the record in exactly
// one stage at all times. A missing source reports services.ErrNotFound:
// another actor won the race, which callers treat as benign.
func (v *Vault) Advance(rec *Record, from, to Stage) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	src := filepath.Join(v.StageDir(from), rec.Name)
	dst := filepath.Join(v.StageDir(to), rec.Name)
	if err := os.MkdirAll(v.StageDir(to), 0o755); err != nil {
		return fmt.Errorf("create stage %s: %w", to, err)
	}
	if err := fileutil.MoveFile(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "vault", "advance",
				fmt.Sprintf("%s no longer in %s", rec.Name, from), nil)
		}
		return fmt.Errorf("advance %s from %s to %s: %w", rec.Name, from, to, err)
	}
	rec.Stage = to
	rec.Path = dst
	return nil
}

// Exists reports whether a record name is currently present in a stage.
func (v *Vault) Exists(stage Stage, name string) bool {
	_, err := os.Stat(filepath.Join(v.StageDir(stage), name))
	return err == nil
}

// Scan lists the markdown records currently in a stage, sorted by name.
// The listing is a snapshot: records relocated after the call may or may
// not appear, and a record that vanishes between listing and read is
// silently skipped. Records whose front matter cannot be parsed are
// returned with a non-nil ParseErr so sweeps can audit and skip them
// without aborting.
func (v *Vault) Scan(stage Stage) ([]*Record, error) {
	dir := v.StageDir(stage)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan stage %s: %w", stage, err)
	}

	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		rec, err := v.Read(stage, entry.Name())
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Read loads a single record from a stage.
func (v *Vault) Read(stage Stage, name string) (*Record, error) {
	path := filepath.Join(v.StageDir(stage), name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		ID:    stem(name),
		Name:  name,
		Stage: stage,
		Path:  path,
	}
	meta, body, parseErr := ParseDocument(data)
	rec.Meta = meta
	rec.Body = body
	rec.ParseErr = parseErr
	return rec, nil
}

// CountByStage reports how many records each stage currently holds.
func (v *Vault) CountByStage() (map[Stage]int, error) {
	counts := make(map[Stage]int, len(Stages()))
	for _, stage := range Stages() {
		entries, err := os.ReadDir(v.StageDir(stage))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				counts[stage] = 0
				continue
			}
			return nil, fmt.Errorf("count stage %s: %w", stage, err)
		}
		n := 0
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
				n++
			}
		}
		counts[stage] = n
	}
	return counts, nil
}

// AppendDashboard appends one human-readable activity line to Dashboard.md,
// creating the file with its header on first use. Lines are never rewritten.
func (v *Vault) AppendDashboard(message string) error {
	path := filepath.Join(v.root, DashboardFileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := fileutil.WriteFileAtomic(path, []byte(dashboardHeader), 0o644); err != nil {
			return fmt.Errorf("create dashboard: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open dashboard: %w", err)
	}
	defer file.Close()

	line := fmt.Sprintf("- [%s] %s\n", time.Now().Format("2006-01-02 15:04"), message)
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("append dashboard: %w", err)
	}
	return nil
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
