package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"caseflow/internal/api"
	"caseflow/internal/daemonctl"
	"caseflow/internal/daemonrun"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startDiagnostic bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the caseflow daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonctl.LaunchOptions{
				SocketPath: ctx.socketPath(),
				ConfigPath: ctx.configPath(),
				Diagnostic: startDiagnostic,
			}, 10*time.Second)
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
			default:
				fmt.Fprintln(stdout, result.Message)
			}
			return nil
		},
	}
	startCmd.Flags().BoolVar(&startDiagnostic, "diagnostic", false, "Enable diagnostic mode with separate DEBUG logs")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the caseflow daemon (terminates the process)",
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
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, staging and health status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.Snapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, status)
			}
			printDaemonStatus(cmd.OutOrStdout(), status, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool
	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Run the caseflow daemon in the foreground (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   cfg.Logging.Level,
				Diagnostic: diagnostic,
				SocketPath: strings.TrimSpace(*ctx.socketFlag),
			})
		},
	}
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Enable diagnostic mode with separate DEBUG logs")
	return cmd
}

func printDaemonStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Caseflow", statusOK, "Running (pid "+strconv.Itoa(status.PID)+")", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Caseflow", statusWarn, "Not running (run `caseflow start`)", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	if status.APIBind != "" {
		fmt.Fprintln(out, renderStatusLine("HTTP API", statusInfo, status.APIBind, colorize))
	}
	if status.Running {
		worker := statusOK
		detail := "Running"
		switch {
		case status.Worker.LastError != "":
			worker, detail = statusWarn, status.Worker.LastError
		case !status.Worker.Running:
			worker, detail = statusInfo, "Disabled"
		}
		fmt.Fprintln(out, renderStatusLine("Transform worker", worker, detail, colorize))
		fmt.Fprintln(out, renderStatusLine("Sensor", sensorKind(status.Sensor), sensorDetail(status.Sensor), colorize))
		fmt.Fprintln(out, renderStatusLine("Active runs", statusInfo, strconv.Itoa(len(status.ActiveRuns)), colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Staging", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(status.Staging) == 0 {
		fmt.Fprintln(out, "No staged records")
	} else {
		fmt.Fprint(out, renderSourceSummaries(status.Staging))
		fmt.Fprintln(out)
	}

	if status.Health != nil {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Health", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, renderStatusLine("Verdict", verdictKind(status.Health.Verdict), verdictDetail(*status.Health), colorize))
	}
}

func sensorKind(s api.SensorStatus) statusKind {
	if !s.Enabled {
		return statusInfo
	}
	if s.LastStatus == "failed" {
		return statusWarn
	}
	return statusOK
}

func sensorDetail(s api.SensorStatus) string {
	if !s.Enabled {
		return "Disabled"
	}
	if s.LastEvaluation == "" {
		return "Waiting for first evaluation"
	}
	detail := fmt.Sprintf("%s, %d triggered", s.LastStatus, s.LastTriggers)
	if at, err := time.Parse(time.RFC3339, s.LastEvaluation); err == nil {
		detail += ", " + humanize.Time(at)
	}
	return detail
}

func renderSourceSummaries(rows []api.SourceSummary) string {
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		last := "-"
		if at, err := time.Parse(time.RFC3339Nano, row.LastIngestion); err == nil {
			last = humanize.Time(at)
		}
		table = append(table, []string{
			row.Source,
			humanize.Comma(row.Total),
			humanize.Comma(row.Processed),
			humanize.Comma(row.Pending),
			humanize.Comma(row.Failed),
			fmt.Sprintf("%.1f%%", row.Score),
			last,
		})
	}
	return renderTable(
		[]string{"Source", "Total", "Processed", "Pending", "Failed", "Score", "Last ingestion"},
		table,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}
