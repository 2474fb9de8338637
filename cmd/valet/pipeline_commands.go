package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"valet/internal/audit"
	"valet/internal/ipc"
	"valet/internal/vault"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one processing pass over the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sweep()
				if err != nil {
					return err
				}
				if !resp.Completed {
					return fmt.Errorf("sweep failed: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Sweep completed")
				return nil
			})
		},
	}
}

func newPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List records waiting for approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openVault()
			if err != nil {
				return err
			}
			records, err := store.Scan(vault.StagePending)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(stdout, "Nothing pending approval")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				meta := rec.Meta
				rows = append(rows, []string{rec.Name, rec.Kind(), meta["source"], meta["reason"]})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"File", "Type", "Source", "Reason"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <file>",
		Short: "Approve a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return moveVerdict(ctx, cmd, args[0], vault.StageApproved, "Approved")
		},
	}
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <file>",
		Short: "Reject a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return moveVerdict(ctx, cmd, args[0], vault.StageRejected, "Rejected")
		},
	}
}

// moveVerdict relocates one pending record into the verdict stage. The
// daemon's next sweep picks it up from there.
func moveVerdict(ctx *commandContext, cmd *cobra.Command, name string, to vault.Stage, verb string) error {
	store, err := ctx.openVault()
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	rec, err := store.Read(vault.StagePending, name)
	if err != nil {
		return fmt.Errorf("no pending record %s: %w", name, err)
	}
	if err := store.Advance(rec, vault.StagePending, to); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, name)
	return nil
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var dayFlag string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openVault()
			if err != nil {
				return err
			}

			day := time.Now()
			if strings.TrimSpace(dayFlag) != "" {
				day, err = time.Parse("2006-01-02", dayFlag)
				if err != nil {
					return fmt.Errorf("parse --day: %w", err)
				}
			}

			auditor := audit.NewLogger(store.LogsDir(), cfg.Audit.Actor)
			entries, err := auditor.Entries(day)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(stdout, "No audit entries for %s\n", day.Format("2006-01-02"))
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.Timestamp,
					entry.ActionType,
					entry.Target,
					entry.Result,
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Timestamp", "Action", "Target", "Result"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVar(&dayFlag, "day", "", "Day to show (YYYY-MM-DD, default today)")
	return cmd
}
