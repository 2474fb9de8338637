// Package daemonctl orchestrates the valetd process from the CLI: it
// launches the daemon, waits for its IPC socket, and stops or force-kills
// it when a graceful shutdown stalls.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"valet/internal/config"
	"valet/internal/ipc"
	"valet/internal/pidfile"
	"valet/internal/vault"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
	Role       string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// Launch starts a detached valetd process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	var args []string
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if role := strings.TrimSpace(opts.Role); role != "" {
		args = append(args, "--role", role)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers on the
// socket. valetd starts its workers on boot, so a reachable socket means a
// running daemon.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if statusResp, statusErr := client.Status(); statusErr == nil && statusResp.Running {
			return StartResult{State: StartStateAlreadyRunning}, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	if launchErr := Launch(executablePath, opts); launchErr != nil {
		return StartResult{}, launchErr
	}
	client, err = WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()
	return StartResult{State: StartStateStarted, Launched: true}, nil
}

// WaitForShutdown waits for daemon IPC to disappear or report not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(200 * time.Millisecond)
			continue
		}
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && !status.Running {
			return nil
		}
		if statusErr != nil {
			lastErr = statusErr
		} else {
			lastErr = fmt.Errorf("daemon still running")
		}
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// StopAndTerminate requests daemon stop and force-kills the process if
// still alive after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	var lockPath string
	pid := 0
	if statusResp, statusErr := client.Status(); statusErr == nil {
		lockPath = statusResp.LockPath
		pid = statusResp.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if resp != nil {
		result.StopAcknowledged = resp.Stopped
	}

	_ = WaitForShutdown(socketPath, gracePeriod)
	alive, livePID, aliveErr := processInfo(socketPath)
	if aliveErr != nil {
		alive = false
	}
	if !alive {
		_ = os.Remove(socketPath)
		return result, nil
	}

	currentPID := livePID
	if currentPID == 0 {
		currentPID = pid
	}
	if currentPID <= 0 || currentPID == os.Getpid() {
		return result, fmt.Errorf("unable to determine daemon pid for forced stop")
	}
	proc, err := os.FindProcess(currentPID)
	if err != nil {
		return result, fmt.Errorf("locate daemon process %d: %w", currentPID, err)
	}
	if err := proc.Kill(); err != nil {
		return result, fmt.Errorf("kill daemon process %d: %w", currentPID, err)
	}
	if lockPath == "" && cfg != nil {
		lockPath = filepath.Join(cfg.Paths.LogDir, "valetd-all.lock")
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = currentPID
	return result, nil
}

// StatusSnapshot is the CLI's view of daemon and vault state, whether or
// not a daemon is reachable.
type StatusSnapshot struct {
	DaemonReachable bool
	Status          ipc.StatusResponse
}

// BuildStatusSnapshot collects daemon status over IPC, falling back to
// reading the vault directly when no daemon answers.
func BuildStatusSnapshot(socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}

	snapshot := &StatusSnapshot{}
	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snapshot.DaemonReachable = true
			snapshot.Status = *resp
		}
	}
	if snapshot.DaemonReachable {
		return snapshot, nil
	}

	store, err := vault.Open(cfg.Paths.VaultDir)
	if err != nil {
		return nil, err
	}
	counts, err := store.CountByStage()
	if err != nil {
		return nil, err
	}
	stageCounts := make(map[string]int, len(counts))
	for stage, count := range counts {
		stageCounts[string(stage)] = count
	}
	snapshot.Status = ipc.StatusResponse{
		VaultPath:   cfg.Paths.VaultDir,
		StageCounts: stageCounts,
	}
	for _, worker := range cfg.Supervisor.Workers {
		alive, pid := pidfile.AliveAt(filepath.Join(cfg.Paths.PidDir, worker.Name+".pid"))
		snapshot.Status.Workers = append(snapshot.Status.Workers, ipc.WorkerStatus{
			Name:  worker.Name,
			Alive: alive,
			PID:   pid,
		})
	}
	return snapshot, nil
}

func processInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, status.PID, nil
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
