package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"caseflow/internal/ipc"
)

func newReplayCommand(ctx *commandContext) *cobra.Command {
	var req ipc.ReplayRequest
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reset staged records to pending so the worker reprocesses them",
		Long: `Reset staged records to pending.

Select exactly one of --record, --case or --failed. --source limits the
replay to one source; without it every source is considered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				result, err := client.Replay(req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if result.Total == 0 {
					fmt.Fprintln(out, "No records matched")
					return nil
				}
				sources := make([]string, 0, len(result.Affected))
				for source := range result.Affected {
					sources = append(sources, source)
				}
				sort.Strings(sources)
				rows := make([][]string, 0, len(sources))
				for _, source := range sources {
					rows = append(rows, []string{source, fmt.Sprint(result.Affected[source])})
				}
				fmt.Fprint(out, renderTable([]string{"Source", "Reset"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Replayed %d records (%s)\n", result.Total, result.Selector)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Source, "source", "", "Limit the replay to one source")
	cmd.Flags().StringVar(&req.RecordID, "record", "", "Replay one staged record")
	cmd.Flags().StringVar(&req.CaseNumber, "case", "", "Replay every record of a case")
	cmd.Flags().BoolVar(&req.Failed, "failed", false, "Replay every failed record")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
