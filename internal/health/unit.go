package health

import (
	"context"
	"strings"

	"caseflow/internal/orchestrator"
)

// StageUnit binds one monitor stage to an orchestrator graph unit. The
// outcome status is the lower-cased verdict and Detail carries the
// StageResult; a stage never hard-fails its run.
func StageUnit(m *Monitor, stage Stage) orchestrator.Unit {
	return orchestrator.UnitFunc(func(ctx context.Context, _ orchestrator.Request) orchestrator.Outcome {
		result := m.Stage(ctx, stage)
		return orchestrator.Outcome{
			Status: strings.ToLower(string(result.Verdict)),
			Error:  result.Error,
			Detail: result,
		}
	})
}

// ReportFromRun assembles a report from the stage outcomes of a finished
// health run. Stages that did not run are reported UNKNOWN.
func ReportFromRun(run orchestrator.Run, graph orchestrator.Graph) (Report, bool) {
	if run.Kind != orchestrator.KindHealth {
		return Report{}, false
	}
	var stages []StageResult
	for _, outcome := range run.Outcomes {
		if outcome.Kind != orchestrator.KindHealth {
			continue
		}
		if result, ok := outcome.Detail.(StageResult); ok {
			stages = append(stages, result)
			continue
		}
		name := outcome.Unit
		if spec, ok := graph.Unit(outcome.Unit); ok && spec.Stage != "" {
			name = spec.Stage
		}
		result := StageResult{Stage: Stage(name), Verdict: Unknown, Error: outcome.Error, CheckedAt: outcome.FinishedAt}
		if outcome.HardFailed() {
			result.Verdict = Degraded
			result.Alerts = []Alert{{Stage: Stage(name), Kind: AlertStageError, Subject: name, Message: outcome.Error}}
		}
		stages = append(stages, result)
	}
	generated := run.StartedAt
	if run.FinishedAt != nil {
		generated = *run.FinishedAt
	}
	return NewReport(run.ID, stages, generated), true
}
