// Package schedule loads recurring-task descriptors from the vault's
// Schedules directory and decides when each one is due. Descriptors are
// markdown files whose front matter names a task, a frequency, a time of
// day, and the weekdays it runs on.
package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"valet/internal/vault"
)

// Frequency values a descriptor may declare.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

const (
	defaultTime = "09:00"
	defaultDays = "monday,wednesday,friday"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Descriptor is one parsed schedule file.
type Descriptor struct {
	FileName  string
	Task      string
	Frequency string
	At        string
	Days      []time.Weekday
	Body      string
}

// Key identifies the descriptor for fire-tracking.
func (d Descriptor) Key() string {
	return d.FileName + "|" + d.Task
}

// runsOn reports whether the descriptor fires on the given weekday.
func (d Descriptor) runsOn(day time.Weekday) bool {
	if d.Frequency == FrequencyDaily {
		return true
	}
	for _, candidate := range d.Days {
		if candidate == day {
			return true
		}
	}
	return false
}

// ParseDescriptor decodes one schedule file. Files without front matter or
// without a task are rejected; missing time and days fall back to 09:00 on
// Monday, Wednesday, and Friday.
func ParseDescriptor(name string, data []byte) (*Descriptor, error) {
	meta, body, err := vault.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}
	task := strings.TrimSpace(meta["task"])
	if task == "" {
		return nil, fmt.Errorf("schedule %s: missing task", name)
	}

	at := strings.TrimSpace(meta["time"])
	if at == "" {
		at = defaultTime
	}
	if _, err := time.Parse("15:04", at); err != nil {
		return nil, fmt.Errorf("schedule %s: invalid time %q", name, at)
	}

	daysField := strings.TrimSpace(meta["days"])
	if daysField == "" {
		daysField = defaultDays
	}
	var days []time.Weekday
	for _, token := range strings.Split(daysField, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		day, ok := weekdayNames[token]
		if !ok {
			return nil, fmt.Errorf("schedule %s: unknown day %q", name, token)
		}
		days = append(days, day)
	}

	return &Descriptor{
		FileName:  name,
		Task:      task,
		Frequency: strings.TrimSpace(meta["frequency"]),
		At:        at,
		Days:      days,
		Body:      body,
	}, nil
}

// Load parses every schedule file in dir, returning descriptors sorted by
// file name plus the names of files that failed to parse.
func Load(dir string) ([]Descriptor, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read schedules: %w", err)
	}

	var descriptors []Descriptor
	var failed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			failed = append(failed, entry.Name())
			continue
		}
		desc, err := ParseDescriptor(entry.Name(), data)
		if err != nil {
			failed = append(failed, entry.Name())
			continue
		}
		descriptors = append(descriptors, *desc)
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].FileName < descriptors[j].FileName })
	return descriptors, failed, nil
}

// Table tracks which descriptors have fired today. Each manager owns its
// own table; there is no process-wide registry.
type Table struct {
	mu          sync.Mutex
	descriptors []Descriptor
	lastFired   map[string]string
}

// NewTable builds a fire-tracking table over the given descriptors.
func NewTable(descriptors []Descriptor) *Table {
	return &Table{
		descriptors: descriptors,
		lastFired:   make(map[string]string),
	}
}

// Replace swaps in a freshly loaded descriptor set, keeping fire history
// for descriptors that survive the reload.
func (t *Table) Replace(descriptors []Descriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.descriptors = descriptors
}

// Len reports how many descriptors the table holds.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.descriptors)
}

// Due returns the descriptors that should fire now: today is one of their
// run days, their time of day has passed, and they have not fired yet
// today. Returned descriptors are marked fired.
func (t *Table) Due(now time.Time) []Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := now.Format("2006-01-02")
	clock := now.Format("15:04")

	var due []Descriptor
	for _, desc := range t.descriptors {
		if !desc.runsOn(now.Weekday()) {
			continue
		}
		if clock < desc.At {
			continue
		}
		if t.lastFired[desc.Key()] == today {
			continue
		}
		t.lastFired[desc.Key()] = today
		due = append(due, desc)
	}
	return due
}
