package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"valet/internal/pidfile"
	"valet/internal/vault"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check vault layout and worker liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			failed := false

			for _, line := range renderSectionHeader("Vault", colorize) {
				fmt.Fprintln(stdout, line)
			}
			store, err := ctx.openVault()
			if err != nil {
				fmt.Fprintln(stdout, renderStatusLine("Vault", statusError, err.Error(), colorize))
				return fmt.Errorf("vault unusable")
			}
			for _, stage := range vault.Stages() {
				if info, err := os.Stat(store.StageDir(stage)); err != nil || !info.IsDir() {
					fmt.Fprintln(stdout, renderStatusLine(stageDisplayName(string(stage)), statusError, "missing", colorize))
					failed = true
					continue
				}
				fmt.Fprintln(stdout, renderStatusLine(stageDisplayName(string(stage)), statusOK, "", colorize))
			}

			if len(cfg.Supervisor.Workers) > 0 {
				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Workers", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, worker := range cfg.Supervisor.Workers {
					alive, pid := pidfile.AliveAt(filepath.Join(cfg.Paths.PidDir, worker.Name+".pid"))
					if alive {
						fmt.Fprintln(stdout, renderStatusLine(worker.Name, statusOK, fmt.Sprintf("pid %d", pid), colorize))
						continue
					}
					fmt.Fprintln(stdout, renderStatusLine(worker.Name, statusError, "not running", colorize))
					failed = true
				}
			}

			if failed {
				return fmt.Errorf("verification failed")
			}
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, "All checks passed")
			return nil
		},
	}
}
