package pidfile_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"valet/internal/pidfile"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pids", "orchestrator.pid")
	if err := pidfile.Write(path, 4242); err != nil {
		t.Fatalf("Write: %v", err)
	}
	pid, err := pidfile.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if pid != 4242 {
		t.Errorf("pid = %d, want 4242", pid)
	}
}

func TestWriteRejectsInvalidPid(t *testing.T) {
	if err := pidfile.Write(filepath.Join(t.TempDir(), "x.pid"), 0); err == nil {
		t.Fatal("expected error for pid 0")
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := pidfile.Read(filepath.Join(t.TempDir(), "absent.pid"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestReadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	if err := os.WriteFile(path, []byte("not a pid"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := pidfile.Read(path); err == nil {
		t.Fatal("expected error for malformed pid file")
	}
}

func TestAliveSelf(t *testing.T) {
	if !pidfile.Alive(os.Getpid()) {
		t.Error("current process reported dead")
	}
	if pidfile.Alive(0) {
		t.Error("pid 0 reported alive")
	}
}

func TestAliveAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "self.pid")
	if err := pidfile.WriteSelf(path); err != nil {
		t.Fatalf("WriteSelf: %v", err)
	}
	alive, pid := pidfile.AliveAt(path)
	if !alive || pid != os.Getpid() {
		t.Errorf("AliveAt = %v, %d", alive, pid)
	}

	alive, pid = pidfile.AliveAt(filepath.Join(t.TempDir(), "absent.pid"))
	if alive || pid != 0 {
		t.Errorf("AliveAt missing = %v, %d", alive, pid)
	}
}

func TestRemoveTolerant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.pid")
	if err := pidfile.Write(path, 123); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := pidfile.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := pidfile.Remove(path); err != nil {
		t.Fatalf("Remove again: %v", err)
	}
}
