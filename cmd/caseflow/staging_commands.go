package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"caseflow/internal/api"
	"caseflow/internal/ipc"
	"caseflow/internal/services"
	"caseflow/internal/staging"
	"caseflow/internal/storage"
)

const stagingListLimit = 200

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect staged source records",
	}

	var summaryJSON bool
	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show per-source processing counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var summaries []api.SourceSummary
			err := ctx.withClientOrDB(func(client *ipc.Client) error {
				resp, err := client.StagingSummary()
				if err != nil {
					return err
				}
				summaries = resp.Sources
				return nil
			}, func(db *storage.DB) error {
				rows, err := staging.NewStore(db, nil).ProcessingSummary(context.Background())
				if err != nil {
					return err
				}
				summaries = api.FromSourceSummaries(rows)
				return nil
			})
			if err != nil {
				return err
			}
			if summaryJSON {
				return writeJSON(cmd, summaries)
			}
			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No staged records")
				return nil
			}
			fmt.Fprint(out, renderSourceSummaries(summaries))
			fmt.Fprintln(out)
			return nil
		},
	}
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "Output as JSON")

	var caseNumber string
	var status string
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list <source>",
		Short: "List staged records of one source by case or status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var records []api.StagedRecord
			err := ctx.withClientOrDB(func(client *ipc.Client) error {
				resp, err := client.StagingList(ipc.StagingListRequest{Source: args[0], CaseNumber: caseNumber, Status: status})
				if err != nil {
					return err
				}
				records = resp.Records
				return nil
			}, func(db *storage.DB) error {
				found, err := listRecordsOffline(staging.NewStore(db, nil), args[0], caseNumber, status)
				records = found
				return err
			})
			if err != nil {
				return err
			}
			if listJSON {
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No matching records")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{r.ID, r.CaseNumber, r.Status, r.InsertedAt, orDash(r.Error)})
			}
			fmt.Fprint(out, renderTable([]string{"ID", "Case", "Status", "Inserted", "Error"}, rows, nil))
			fmt.Fprintln(out)
			return nil
		},
	}
	listCmd.Flags().StringVar(&caseNumber, "case", "", "Records for this case")
	listCmd.Flags().StringVar(&status, "status", "", "Records in this status (pending, completed, failed)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	stagingCmd.AddCommand(summaryCmd, listCmd)
	return stagingCmd
}

func listRecordsOffline(store *staging.Store, source, caseNumber, status string) ([]api.StagedRecord, error) {
	sourceType, err := staging.ParseSourceType(source)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	var records []staging.Record
	switch {
	case strings.TrimSpace(caseNumber) != "":
		records, err = store.ListByWorkUnit(ctx, sourceType, strings.TrimSpace(caseNumber), stagingListLimit)
	case strings.TrimSpace(status) != "":
		records, err = store.ListByStatus(ctx, sourceType, staging.Status(strings.ToLower(strings.TrimSpace(status))), stagingListLimit)
	default:
		return nil, services.Wrap(services.ErrValidation, "cli", "list records", "--case or --status is required", nil)
	}
	if err != nil {
		return nil, err
	}
	return api.FromRecords(records), nil
}
