package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"caseflow/internal/api"
	"caseflow/internal/ipc"
)

func newCaseCommand(ctx *commandContext) *cobra.Command {
	caseCmd := &cobra.Command{
		Use:   "case",
		Short: "Register, ingest and inspect cases",
	}
	caseCmd.AddCommand(newCaseAddCommand(ctx))
	caseCmd.AddCommand(newCaseIngestCommand(ctx))
	caseCmd.AddCommand(newCaseStatusCommand(ctx))
	return caseCmd
}

func newCaseAddCommand(ctx *commandContext) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "add <case-number>",
		Short: "Register a case without ingesting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.CaseAdd(ipc.CaseAddRequest{CaseNumber: args[0], Label: label})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Case %s registered\n", status.CaseNumber)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Display label for the case")
	return cmd
}

func newCaseIngestCommand(ctx *commandContext) *cobra.Command {
	var label string
	var wait bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ingest <case-number>",
		Short: "Trigger ingestion for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := api.ModeAsync
			if wait {
				mode = api.ModeSync
			}
			return ctx.withClient(func(client *ipc.Client) error {
				result, err := client.CaseIngest(ipc.CaseIngestRequest{CaseNumber: args[0], Label: label, Mode: mode})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				printTriggerResult(cmd.OutOrStdout(), *result)
				if result.Status == api.TriggerFailed {
					return fmt.Errorf("ingestion failed for case %s", result.CaseNumber)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Display label for a new case")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the run to finish")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printTriggerResult(out io.Writer, result api.TriggerResult) {
	switch result.Status {
	case api.TriggerTriggered:
		fmt.Fprintf(out, "Ingestion triggered for case %s (run %s)\n", result.CaseNumber, result.RunID)
	case api.TriggerRunning:
		fmt.Fprintf(out, "Ingestion already running for case %s (run %s)\n", result.CaseNumber, result.RunID)
	case api.TriggerCompleted:
		fmt.Fprintf(out, "Ingestion completed for case %s (run %s)\n", result.CaseNumber, result.RunID)
	case api.TriggerFailed:
		fmt.Fprintf(out, "Ingestion failed for case %s (run %s): %s\n", result.CaseNumber, result.RunID, result.Error)
	default:
		fmt.Fprintf(out, "Case %s: %s\n", result.CaseNumber, result.Status)
	}
}

func newCaseStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <case-number>",
		Short: "Show how far a case has propagated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.CaseStatus(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				printCaseStatus(cmd.OutOrStdout(), *status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printCaseStatus(out io.Writer, status api.CaseStatus) {
	title := status.CaseNumber
	if strings.TrimSpace(status.Label) != "" {
		title += " (" + status.Label + ")"
	}
	fmt.Fprintf(out, "Case %s: %s\n", title, strings.ReplaceAll(status.Status, "_", " "))
	if status.Status == api.CaseNotStarted {
		return
	}
	c := status.Counts
	fmt.Fprint(out, renderTable(
		[]string{"Staged", "Pending", "Completed", "Failed", "Silver", "Gold"},
		[][]string{{
			fmt.Sprint(c.Staged), fmt.Sprint(c.Pending), fmt.Sprint(c.Completed),
			fmt.Sprint(c.Failed), fmt.Sprint(c.Silver), fmt.Sprint(c.Gold),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	fmt.Fprintln(out)
	if status.LastRun != nil {
		fmt.Fprintf(out, "Last run: %s %s (%s)\n", status.LastRun.ID, status.LastRun.Status, status.LastRun.StartedAt)
	}
}
