package health

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label title-cases a verdict or stage name for display.
func Label(value string) string {
	return cases.Title(language.Und).String(strings.ToLower(value))
}

// WriteText renders report as plain text for logs, notifications and
// non-terminal CLI output.
func WriteText(w io.Writer, report Report) error {
	var b strings.Builder
	b.WriteString("Health report\n")
	if report.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", report.RunID)
	}
	fmt.Fprintf(&b, "Generated: %s\n", report.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Verdict: %s\n", Label(string(report.Verdict)))

	for _, stage := range report.Stages {
		fmt.Fprintf(&b, "\nStage %s: %s\n", Label(string(stage.Stage)), Label(string(stage.Verdict)))
		if stage.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", stage.Error)
		}
		for _, s := range stage.Sources {
			fmt.Fprintf(&b, "  source %s: total=%d processed=%d pending=%d failed=%d score=%.1f\n",
				s.Source, s.Total, s.Processed, s.Pending, s.Failed, s.Score)
		}
		for _, p := range stage.Propagation {
			fmt.Fprintf(&b, "  entity %s (%s from %s): staged=%d derived=%d\n",
				p.Entity, p.Layer, p.Source, p.Staged, p.Derived)
		}
		if stage.Stage == StageFunctional && stage.SampleCase == "" && stage.Error == "" {
			b.WriteString("  no sample work unit\n")
		}
		if stage.SampleCase != "" {
			fmt.Fprintf(&b, "  sample case: %s\n", stage.SampleCase)
		}
		for _, c := range stage.Computations {
			fmt.Fprintf(&b, "  computation %s: %s\n", c.Name, computationStatus(c))
		}
	}

	alerts := report.Alerts()
	if len(alerts) == 0 {
		b.WriteString("\nAlerts: none\n")
	} else {
		fmt.Fprintf(&b, "\nAlerts: %d\n", len(alerts))
		for _, alert := range alerts {
			fmt.Fprintf(&b, "  - %s/%s %s: %s\n", alert.Stage, alert.Kind, alert.Subject, alert.Message)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func computationStatus(c ComputationResult) string {
	switch {
	case c.OK:
		return "ok"
	case c.Unresolved:
		return "unresolved (" + c.Error + ")"
	default:
		return "failed (" + c.Error + ")"
	}
}
