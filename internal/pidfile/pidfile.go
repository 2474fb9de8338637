// Package pidfile manages per-worker pid files and liveness probes.
package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Write records a process id in a pid file, creating parent directories as
// needed.
func Write(path string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file %q: %w", path, err)
	}
	return nil
}

// WriteSelf records the current process id.
func WriteSelf(path string) error {
	return Write(path, os.Getpid())
}

// Read parses a pid file. A missing file reports fs.ErrNotExist.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %q holds %q, not a pid", path, text)
	}
	return pid, nil
}

// Alive reports whether a process with the given pid exists. It probes
// with signal 0, so permission errors still count as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}

// AliveAt reads a pid file and probes the recorded process. A missing or
// malformed file reports not alive.
func AliveAt(path string) (bool, int) {
	pid, err := Read(path)
	if err != nil {
		return false, 0
	}
	return Alive(pid), pid
}

// Remove deletes a pid file, tolerating one that is already gone.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid file %q: %w", path, err)
	}
	return nil
}
