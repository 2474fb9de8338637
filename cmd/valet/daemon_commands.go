package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"valet/internal/daemonctl"
	"valet/internal/vault"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startRole string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the valet daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startRole),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startRole, "role", "", "Worker role to run (all, orchestrator, poster, watchers, supervisor)")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the valet daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Stopping daemon workers...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartRole string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the valet daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			stopResult, stopErr := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if stopErr != nil && !errors.Is(stopErr, daemonctl.ErrDaemonNotRunning) {
				return stopErr
			}
			if stopErr == nil {
				if stopResult.ForcedKill && stopResult.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", stopResult.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			if _, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, restartRole),
				10*time.Second,
			); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartRole, "role", "", "Worker role to run (all, orchestrator, poster, watchers, supervisor)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and vault status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			status := snapshot.Status

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if snapshot.DaemonReachable {
				running := statusWarn
				detail := "workers stopped"
				if status.Running {
					running = statusOK
					detail = fmt.Sprintf("role %s, pid %d", status.Role, status.PID)
				}
				fmt.Fprintln(stdout, renderStatusLine("Daemon", running, detail, colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "not reachable; showing vault state directly", colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Vault", statusInfo, status.VaultPath, colorize))

			if len(status.Workers) > 0 {
				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Workers", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, worker := range status.Workers {
					kind := statusError
					detail := "not running"
					if worker.Alive {
						kind = statusOK
						detail = fmt.Sprintf("pid %d", worker.PID)
					}
					fmt.Fprintln(stdout, renderStatusLine(worker.Name, kind, detail, colorize))
				}
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Pipeline", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildStageRows(status.StageCounts)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Vault is empty")
				return nil
			}
			fmt.Fprintln(stdout, renderTable([]string{"Stage", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func buildStageRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, stage := range vault.Stages() {
		count, ok := counts[string(stage)]
		if !ok {
			continue
		}
		rows = append(rows, []string{stageDisplayName(string(stage)), fmt.Sprintf("%d", count)})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return valetdPath(exe), nil
}

// valetdPath locates the daemon binary next to the CLI binary.
func valetdPath(cliPath string) string {
	dir := strings.TrimSuffix(cliPath, "valet")
	if dir == cliPath {
		return "valetd"
	}
	return dir + "valetd"
}

func daemonLaunchOptions(ctx *commandContext, role string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{Role: strings.TrimSpace(role)}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
