package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/schema"
	"caseflow/internal/staging"
	"caseflow/internal/transform"
)

// Summarizer is the slice of the staging store the monitor reads.
type Summarizer interface {
	ProcessingSummary(ctx context.Context) ([]staging.SourceSummary, error)
}

// Thresholds tune staging alerts.
type Thresholds struct {
	// PendingMax is the largest pending backlog that does not alert.
	PendingMax int64
	// MinScore is the lowest health score that does not alert.
	MinScore float64
}

// DefaultThresholds alerts above 5 pending records or below a score of 95.
func DefaultThresholds() Thresholds {
	return Thresholds{PendingMax: 5, MinScore: 95}
}

// ThresholdsFromConfig reads thresholds from the [health] section.
func ThresholdsFromConfig(cfg config.Health) Thresholds {
	t := DefaultThresholds()
	if cfg.PendingThreshold > 0 {
		t.PendingMax = int64(cfg.PendingThreshold)
	}
	if cfg.ScoreThreshold > 0 {
		t.MinScore = cfg.ScoreThreshold
	}
	return t
}

// HealthScore is processed/total*100, or 100 when nothing is staged.
func HealthScore(total, processed int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(processed) / float64(total) * 100
}

// Monitor evaluates the three health stages. It only reads.
type Monitor struct {
	staging    Summarizer
	engine     transform.Engine
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time
}

// NewMonitor constructs a monitor.
func NewMonitor(summarizer Summarizer, engine transform.Engine, thresholds Thresholds, logger *slog.Logger) *Monitor {
	return &Monitor{
		staging:    summarizer,
		engine:     engine,
		thresholds: thresholds,
		logger:     logging.NewComponentLogger(logger, "health"),
		now:        time.Now,
	}
}

// Stage evaluates one stage by name.
func (m *Monitor) Stage(ctx context.Context, stage Stage) StageResult {
	switch stage {
	case StageStaging:
		return m.Staging(ctx)
	case StagePropagation:
		return m.Propagation(ctx)
	case StageFunctional:
		return m.Functional(ctx)
	default:
		return m.failed(stage, fmt.Errorf("unknown stage %q", stage))
	}
}

// Run evaluates every stage in order outside the orchestrator.
func (m *Monitor) Run(ctx context.Context) Report {
	results := make([]StageResult, 0, len(Stages))
	for _, stage := range Stages {
		results = append(results, m.Stage(ctx, stage))
	}
	return NewReport("", results, m.now().UTC())
}

// Staging scores each source type's processing progress.
func (m *Monitor) Staging(ctx context.Context) StageResult {
	summaries, err := m.staging.ProcessingSummary(ctx)
	if err != nil {
		return m.failed(StageStaging, err)
	}
	result := StageResult{Stage: StageStaging, Verdict: Healthy, CheckedAt: m.now().UTC()}
	for _, s := range summaries {
		metrics := SourceMetrics{
			Source:         s.SourceType,
			Total:          s.Total,
			Processed:      s.Processed,
			Pending:        s.Pending,
			Failed:         s.Failed,
			Score:          HealthScore(s.Total, s.Processed),
			FirstIngestion: s.FirstIngestion,
			LastIngestion:  s.LastIngestion,
		}
		result.Sources = append(result.Sources, metrics)
		subject := string(s.SourceType)
		if metrics.Failed > 0 {
			result.Alerts = append(result.Alerts, Alert{
				Stage: StageStaging, Kind: AlertFailedRecords, Subject: subject,
				Message: fmt.Sprintf("%d failed records", metrics.Failed),
			})
		}
		if metrics.Pending > m.thresholds.PendingMax {
			result.Alerts = append(result.Alerts, Alert{
				Stage: StageStaging, Kind: AlertPendingBacklog, Subject: subject,
				Message: fmt.Sprintf("%d records pending, possible stuck backlog", metrics.Pending),
			})
		}
		if metrics.Score < m.thresholds.MinScore {
			result.Alerts = append(result.Alerts, Alert{
				Stage: StageStaging, Kind: AlertLowScore, Subject: subject,
				Message: fmt.Sprintf("health score %.1f below %.1f", metrics.Score, m.thresholds.MinScore),
			})
		}
	}
	if len(result.Alerts) > 0 {
		result.Verdict = Degraded
	}
	m.logResult(result)
	return result
}

// Propagation compares staged and derived counts for every engine binding.
func (m *Monitor) Propagation(ctx context.Context) StageResult {
	summaries, err := m.staging.ProcessingSummary(ctx)
	if err != nil {
		return m.failed(StagePropagation, err)
	}
	staged := make(map[staging.SourceType]int64, len(summaries))
	for _, s := range summaries {
		staged[s.SourceType] = s.Total
	}
	result := StageResult{Stage: StagePropagation, Verdict: Healthy, CheckedAt: m.now().UTC()}
	for _, binding := range m.engine.Bindings() {
		derived, err := m.engine.PropagationCount(ctx, binding.Entity, binding.Source)
		if err != nil {
			return m.failed(StagePropagation, err)
		}
		metrics := PropagationMetrics{
			Entity:  binding.Entity,
			Layer:   binding.Layer,
			Source:  binding.Source,
			Staged:  staged[binding.Source],
			Derived: derived,
		}
		result.Propagation = append(result.Propagation, metrics)
		if metrics.Staged > 0 && metrics.Derived == 0 {
			result.Alerts = append(result.Alerts, Alert{
				Stage:   StagePropagation,
				Kind:    AlertPropagation,
				Subject: binding.Entity,
				Message: fmt.Sprintf("%d staged %s records but no %s %s records", metrics.Staged, binding.Source, binding.Layer, binding.Entity),
			})
		}
	}
	if len(result.Alerts) > 0 {
		result.Verdict = Degraded
	}
	m.logResult(result)
	return result
}

// Functional invokes every computation against one sample work unit.
// Without a sample the verdict is UNKNOWN. A computation that fails only
// because the sample lacks inputs is reported without degrading the stage.
func (m *Monitor) Functional(ctx context.Context) StageResult {
	sample, ok, err := m.engine.SampleWorkUnit(ctx)
	if err != nil {
		return m.failed(StageFunctional, err)
	}
	result := StageResult{Stage: StageFunctional, Verdict: Healthy, CheckedAt: m.now().UTC()}
	if !ok {
		result.Verdict = Unknown
		m.logResult(result)
		return result
	}
	result.SampleCase = sample
	for _, name := range m.engine.Computations() {
		started := m.now()
		value, err := m.engine.Compute(ctx, name, sample)
		comp := ComputationResult{Name: name, OK: err == nil, Elapsed: m.now().Sub(started)}
		switch {
		case err == nil:
			comp.Value = value
		case errors.Is(err, schema.ErrUnresolvedField):
			comp.Unresolved = true
			comp.Error = err.Error()
		default:
			comp.Error = err.Error()
			result.Verdict = Degraded
			result.Alerts = append(result.Alerts, Alert{
				Stage:   StageFunctional,
				Kind:    AlertComputationFailed,
				Subject: name,
				Message: fmt.Sprintf("case %s: %v", sample, err),
			})
		}
		result.Computations = append(result.Computations, comp)
	}
	m.logResult(result)
	return result
}

func (m *Monitor) failed(stage Stage, err error) StageResult {
	result := StageResult{
		Stage:     stage,
		Verdict:   Degraded,
		Error:     err.Error(),
		CheckedAt: m.now().UTC(),
		Alerts: []Alert{{
			Stage:   stage,
			Kind:    AlertStageError,
			Subject: string(stage),
			Message: err.Error(),
		}},
	}
	logging.WarnWithContext(m.logger, "health stage could not evaluate", "health_stage_error",
		logging.String("stage", string(stage)),
		logging.Error(err),
		logging.String(logging.FieldImpact, "stage reported degraded"),
		logging.String(logging.FieldErrorHint, "check storage connectivity"),
	)
	return result
}

func (m *Monitor) logResult(result StageResult) {
	attrs := []logging.Attr{
		logging.String("stage", string(result.Stage)),
		logging.String("verdict", string(result.Verdict)),
		logging.Int("alerts", len(result.Alerts)),
		logging.String(logging.FieldEventType, "health_stage_evaluated"),
	}
	if result.SampleCase != "" {
		attrs = append(attrs, logging.String(logging.FieldCaseID, result.SampleCase))
	}
	if result.Verdict == Degraded {
		for _, alert := range result.Alerts {
			m.logger.Warn("health alert",
				logging.String("stage", string(alert.Stage)),
				logging.Alert(alert.Kind),
				logging.String("subject", alert.Subject),
				logging.String("detail", alert.Message),
				logging.String(logging.FieldEventType, "health_alert"),
			)
		}
	}
	m.logger.Info("health stage evaluated", logging.Args(attrs...)...)
}
