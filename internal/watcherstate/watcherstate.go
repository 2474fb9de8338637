// Package watcherstate persists each watcher's ledger of processed source
// IDs, so a restart never re-enqueues work it already handled. The ledger
// lives as a hidden JSON file next to the audit logs.
package watcherstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"valet/internal/fileutil"
	"valet/internal/services"
)

type stateFile struct {
	ProcessedIDs []string `json:"processed_ids"`
}

// Store tracks the processed-ID set for one named watcher.
type Store struct {
	path       string
	name       string
	allowReset bool

	mu        sync.Mutex
	processed map[string]struct{}
}

// Open loads the ledger for a watcher from the given logs directory. A
// missing file starts an empty ledger. A corrupt file is a hard error
// unless allowReset is set: duplicate side effects are worse than a
// stalled watcher.
func Open(logsDir, name string, allowReset bool) (*Store, error) {
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "watcherstate", "open", "watcher name required", nil)
	}
	s := &Store{
		path:       filepath.Join(logsDir, fmt.Sprintf(".%s_state.json", name)),
		name:       name,
		allowReset: allowReset,
		processed:  make(map[string]struct{}),
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read watcher state %s: %w", name, err)
	}
	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		if !allowReset {
			return nil, services.Wrap(services.ErrConfiguration, "watcherstate", "open",
				fmt.Sprintf("state file for %s is corrupt; refusing to restart from empty (enable allow_state_reset to override)", name), err)
		}
		return s, nil
	}
	for _, id := range file.ProcessedIDs {
		s.processed[id] = struct{}{}
	}
	return s, nil
}

// Name returns the watcher this store belongs to.
func (s *Store) Name() string { return s.name }

// Seen reports whether an ID has already been processed.
func (s *Store) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[id]
	return ok
}

// MarkProcessed records one or more IDs and persists the ledger. IDs
// already present are ignored; the file is rewritten atomically.
func (s *Store) MarkProcessed(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.processed[id]; !ok {
			s.processed[id] = struct{}{}
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.persistLocked()
}

// Len reports how many IDs the ledger holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

func (s *Store) persistLocked() error {
	ids := make([]string, 0, len(s.processed))
	for id := range s.processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	payload, err := json.MarshalIndent(stateFile{ProcessedIDs: ids}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode watcher state %s: %w", s.name, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, payload, 0o644); err != nil {
		return fmt.Errorf("write watcher state %s: %w", s.name, err)
	}
	return nil
}
