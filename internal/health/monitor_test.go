package health_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/health"
	"caseflow/internal/schema"
	"caseflow/internal/services"
	"caseflow/internal/staging"
	"caseflow/internal/transform"
)

type fakeSummarizer struct {
	summaries []staging.SourceSummary
	err       error
}

func (f fakeSummarizer) ProcessingSummary(context.Context) ([]staging.SourceSummary, error) {
	return f.summaries, f.err
}

type fakeEngine struct {
	bindings []transform.Binding
	counts   map[string]int64
	sample   string
	results  map[string]error
}

func (f *fakeEngine) Bindings() []transform.Binding { return f.bindings }

func (f *fakeEngine) PropagationCount(_ context.Context, entity string, source staging.SourceType) (int64, error) {
	return f.counts[entity+"/"+string(source)], nil
}

func (f *fakeEngine) LayerCounts(context.Context, string) (transform.LayerCounts, error) {
	return transform.LayerCounts{}, nil
}

func (f *fakeEngine) SampleWorkUnit(context.Context) (string, bool, error) {
	return f.sample, f.sample != "", nil
}

func (f *fakeEngine) Computations() []string {
	names := make([]string, 0, len(f.results))
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if _, ok := f.results[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (f *fakeEngine) Compute(_ context.Context, name, _ string) (any, error) {
	if err := f.results[name]; err != nil {
		return nil, err
	}
	return 1.0, nil
}

func alertKinds(result health.StageResult) []string {
	kinds := make([]string, 0, len(result.Alerts))
	for _, alert := range result.Alerts {
		kinds = append(kinds, alert.Subject+":"+alert.Kind)
	}
	return kinds
}

func TestHealthScore(t *testing.T) {
	assert.Equal(t, 94.0, health.HealthScore(100, 94))
	assert.Equal(t, 100.0, health.HealthScore(0, 0))
	assert.Equal(t, 100.0, health.HealthScore(12, 12))
}

func TestStagingStageAlerts(t *testing.T) {
	summarizer := fakeSummarizer{summaries: []staging.SourceSummary{
		{SourceType: staging.SourceAT, Total: 100, Processed: 94, Pending: 6},
		{SourceType: staging.SourceInterview, Total: 10, Processed: 9, Failed: 1},
		{SourceType: staging.SourceTRT, Total: 0},
		{SourceType: staging.SourceWI, Total: 40, Processed: 40},
	}}
	monitor := health.NewMonitor(summarizer, &fakeEngine{}, health.DefaultThresholds(), nil)

	result := monitor.Staging(context.Background())
	assert.Equal(t, health.Degraded, result.Verdict)
	require.Len(t, result.Sources, 4)
	assert.Equal(t, 94.0, result.Sources[0].Score)
	assert.Equal(t, 100.0, result.Sources[2].Score)
	assert.ElementsMatch(t, []string{
		"at:pending_backlog",
		"at:low_score",
		"interview:failed_records",
		"interview:low_score",
	}, alertKinds(result))
}

func TestStagingStageHealthyWhenEmpty(t *testing.T) {
	monitor := health.NewMonitor(fakeSummarizer{}, &fakeEngine{}, health.DefaultThresholds(), nil)
	result := monitor.Staging(context.Background())
	assert.Equal(t, health.Healthy, result.Verdict)
	assert.Empty(t, result.Alerts)
}

func TestStagingStageStorageFailureDegrades(t *testing.T) {
	boom := services.Wrap(services.ErrStorageUnavailable, "staging", "processing summary", "database is locked", nil)
	monitor := health.NewMonitor(fakeSummarizer{err: boom}, &fakeEngine{}, health.DefaultThresholds(), nil)

	result := monitor.Staging(context.Background())
	assert.Equal(t, health.Degraded, result.Verdict)
	assert.Contains(t, result.Error, "database is locked")
	assert.Equal(t, []string{"staging:stage_error"}, alertKinds(result))
}

func TestPropagationStage(t *testing.T) {
	summarizer := fakeSummarizer{summaries: []staging.SourceSummary{
		{SourceType: staging.SourceAT, Total: 12, Processed: 12},
		{SourceType: staging.SourceWI, Total: 12, Processed: 12},
	}}
	engine := &fakeEngine{
		bindings: []transform.Binding{
			{Entity: transform.EntityTaxYear, Layer: transform.LayerSilver, Source: staging.SourceAT},
			{Entity: transform.EntityIncomeDocument, Layer: transform.LayerSilver, Source: staging.SourceWI},
			{Entity: transform.EntityEmployment, Layer: transform.LayerGold, Source: staging.SourceInterview},
		},
		counts: map[string]int64{"tax_year/at": 12},
	}
	monitor := health.NewMonitor(summarizer, engine, health.DefaultThresholds(), nil)

	result := monitor.Propagation(context.Background())
	assert.Equal(t, health.Degraded, result.Verdict)
	assert.Equal(t, []string{"income_document:propagation_broken"}, alertKinds(result))
	require.Len(t, result.Propagation, 3)
	assert.Equal(t, int64(12), result.Propagation[0].Derived)
	assert.Equal(t, int64(0), result.Propagation[2].Staged)

	engine.counts["income_document/wi"] = 12
	result = monitor.Propagation(context.Background())
	assert.Equal(t, health.Healthy, result.Verdict)
	assert.Empty(t, result.Alerts)
}

func TestFunctionalStageWithoutSampleIsUnknown(t *testing.T) {
	monitor := health.NewMonitor(fakeSummarizer{}, &fakeEngine{}, health.DefaultThresholds(), nil)
	result := monitor.Functional(context.Background())
	assert.Equal(t, health.Unknown, result.Verdict)
	assert.Empty(t, result.Computations)
}

func TestFunctionalStageReportsEachComputation(t *testing.T) {
	engine := &fakeEngine{
		sample: "1295022",
		results: map[string]error{
			"alpha": nil,
			"beta":  fmt.Errorf("beta: %w", &schema.UnresolvedError{Field: "se_tax", Tried: []string{"se_tax"}}),
			"gamma": errors.New("division by zero"),
		},
	}
	monitor := health.NewMonitor(fakeSummarizer{}, engine, health.DefaultThresholds(), nil)

	result := monitor.Functional(context.Background())
	assert.Equal(t, health.Degraded, result.Verdict)
	assert.Equal(t, "1295022", result.SampleCase)
	require.Len(t, result.Computations, 3)
	assert.True(t, result.Computations[0].OK)
	assert.False(t, result.Computations[1].OK)
	assert.True(t, result.Computations[1].Unresolved)
	assert.False(t, result.Computations[2].Unresolved)
	assert.Equal(t, []string{"gamma:computation_failed"}, alertKinds(result))

	delete(engine.results, "gamma")
	result = monitor.Functional(context.Background())
	assert.Equal(t, health.Healthy, result.Verdict, "unresolved inputs do not degrade the stage")
}

func TestReportVerdictIsWorstStage(t *testing.T) {
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	report := health.NewReport("r1", []health.StageResult{
		{Stage: health.StageStaging, Verdict: health.Healthy},
		{Stage: health.StageFunctional, Verdict: health.Unknown},
	}, now)
	assert.Equal(t, health.Unknown, report.Verdict)

	report = health.NewReport("r2", []health.StageResult{
		{Stage: health.StageStaging, Verdict: health.Degraded},
		{Stage: health.StageFunctional, Verdict: health.Unknown},
	}, now)
	assert.Equal(t, health.Degraded, report.Verdict)
}

func TestThresholdsFromConfig(t *testing.T) {
	assert.Equal(t, health.DefaultThresholds(), health.ThresholdsFromConfig(configHealth(0, 0)))
	assert.Equal(t, health.Thresholds{PendingMax: 10, MinScore: 90}, health.ThresholdsFromConfig(configHealth(10, 90)))
}
