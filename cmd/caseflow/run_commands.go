package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"caseflow/internal/api"
	"caseflow/internal/ipc"
	"caseflow/internal/orchestrator"
	"caseflow/internal/storage"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect orchestrator runs",
	}

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its unit outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run api.RunView
			err := ctx.withClientOrDB(func(client *ipc.Client) error {
				resp, err := client.RunShow(args[0])
				if err != nil {
					return err
				}
				run = resp.Run
				return nil
			}, func(db *storage.DB) error {
				stored, err := orchestrator.NewRunStore(db).Get(context.Background(), args[0])
				if err != nil {
					return err
				}
				run = api.FromRun(stored)
				return nil
			})
			if err != nil {
				return err
			}
			if showJSON {
				return writeJSON(cmd, run)
			}
			printRun(cmd.OutOrStdout(), run)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	var caseNumber string
	var limit int
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var runs []api.RunView
			err := ctx.withClientOrDB(func(client *ipc.Client) error {
				resp, err := client.RunList(ipc.RunListRequest{CaseNumber: caseNumber, Limit: limit})
				if err != nil {
					return err
				}
				runs = resp.Runs
				return nil
			}, func(db *storage.DB) error {
				stored, err := orchestrator.NewRunStore(db).List(context.Background(), caseNumber, limit)
				if err != nil {
					return err
				}
				runs = api.FromRuns(stored)
				return nil
			})
			if err != nil {
				return err
			}
			if listJSON {
				return writeJSON(cmd, api.RunListResponse{Runs: runs})
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{run.ID, run.Kind, orDash(run.CaseNumber), run.Status, run.StartedAt})
			}
			fmt.Fprint(out, renderTable([]string{"ID", "Kind", "Case", "Status", "Started"}, rows, nil))
			fmt.Fprintln(out)
			return nil
		},
	}
	listCmd.Flags().StringVar(&caseNumber, "case", "", "Only runs for this case")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	runCmd.AddCommand(showCmd, listCmd)
	return runCmd
}

func printRun(out io.Writer, run api.RunView) {
	fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Kind)
	if run.CaseNumber != "" {
		fmt.Fprintf(out, "Case: %s\n", run.CaseNumber)
	}
	fmt.Fprintf(out, "Status: %s\n", run.Status)
	fmt.Fprintf(out, "Started: %s\n", run.StartedAt)
	if run.FinishedAt != "" {
		fmt.Fprintf(out, "Finished: %s\n", run.FinishedAt)
	}
	if run.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", run.Error)
	}
	if len(run.Units) == 0 {
		return
	}
	rows := make([][]string, 0, len(run.Units))
	for _, unit := range run.Units {
		detail := unit.Error
		if detail == "" && len(unit.BlobIDs) > 0 {
			detail = fmt.Sprintf("%d blobs (%d duplicate)", len(unit.BlobIDs), unit.Duplicates)
		}
		if detail == "" {
			detail = unit.StagedRecordID
		}
		rows = append(rows, []string{unit.Unit, unit.Status, fmt.Sprintf("%dms", unit.DurationMillis), orDash(detail)})
	}
	fmt.Fprint(out, renderTable([]string{"Unit", "Status", "Duration", "Detail"},
		rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
	fmt.Fprintln(out)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
