package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"caseflow/internal/api"
	"caseflow/internal/health"
	"caseflow/internal/ipc"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var run bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show the latest pipeline health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				var report *api.HealthReport
				if run {
					resp, err := client.HealthRun(true)
					if err != nil {
						return err
					}
					if resp.Report == nil {
						fmt.Fprintf(out, "Health run %s is %s\n", resp.Run.ID, resp.Run.Status)
						return nil
					}
					report = resp.Report
				} else {
					resp, err := client.Health()
					if err != nil {
						return err
					}
					if !resp.Available {
						fmt.Fprintln(out, "No health report yet (run `caseflow health --run`)")
						return nil
					}
					report = &resp.Report
				}
				if asJSON {
					return writeJSON(cmd, report)
				}
				printHealthReport(out, *report, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&run, "run", false, "Run the health checks now and wait for the report")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printHealthReport(out io.Writer, report api.HealthReport, colorize bool) {
	for _, line := range renderSectionHeader("Pipeline Health", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Verdict", verdictKind(report.Verdict), verdictDetail(report), colorize))
	for _, stage := range report.Stages {
		detail := health.Label(stage.Verdict)
		if stage.Error != "" {
			detail += ": " + stage.Error
		}
		fmt.Fprintln(out, renderStatusLine(health.Label(strings.ReplaceAll(stage.Stage, "_", " ")), verdictKind(stage.Verdict), detail, colorize))
	}
	if len(report.Alerts) == 0 {
		return
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(report.Alerts))
	for _, alert := range report.Alerts {
		rows = append(rows, []string{alert.Stage, alert.Kind, alert.Subject, alert.Message})
	}
	fmt.Fprint(out, renderTable([]string{"Stage", "Kind", "Subject", "Message"}, rows, nil))
	fmt.Fprintln(out)
}
