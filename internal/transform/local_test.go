package transform_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/schema"
	"caseflow/internal/services"
	"caseflow/internal/staging"
	"caseflow/internal/testsupport"
	"caseflow/internal/transform"
)

func newEngine(t *testing.T) (*transform.LocalEngine, *transform.Worker, *staging.Store) {
	t.Helper()
	store, db := testsupport.MustOpenStaging(t)
	engine := transform.NewLocalEngine(db, store, schema.MustRegistry(), nil)
	worker := transform.NewWorker(engine, store, time.Millisecond, time.Millisecond, nil)
	return engine, worker, store
}

func stageAll(t *testing.T, store *staging.Store, caseNumber string) {
	t.Helper()
	testsupport.StageRecord(t, store, caseNumber, staging.SourceAT, testsupport.ATPayload)
	testsupport.StageRecord(t, store, caseNumber, staging.SourceWI, testsupport.WIPayload)
	testsupport.StageRecord(t, store, caseNumber, staging.SourceTRT, testsupport.TRTPayload)
	testsupport.StageRecord(t, store, caseNumber, staging.SourceInterview, testsupport.InterviewPayload)
}

func TestWorkerDerivesAllLayers(t *testing.T) {
	ctx := context.Background()
	engine, worker, store := newEngine(t)
	stageAll(t, store, "1295022")

	n, err := worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	counts, err := engine.LayerCounts(ctx, "1295022")
	require.NoError(t, err)
	// silver: 2 AT years, 2 WI forms, 2 TRT years, 1 profile; gold: 2 positions + 3 interview.
	assert.Equal(t, int64(7), counts.Silver)
	assert.Equal(t, int64(5), counts.Gold)

	for _, binding := range engine.Bindings() {
		got, err := engine.PropagationCount(ctx, binding.Entity, binding.Source)
		require.NoError(t, err)
		assert.Positive(t, got, "%s from %s", binding.Entity, binding.Source)
	}

	unit, err := store.CountsForWorkUnit(ctx, "1295022")
	require.NoError(t, err)
	assert.Equal(t, int64(4), unit.Completed)

	records, err := store.ListByWorkUnit(ctx, staging.SourceAT, "1295022", 1)
	require.NoError(t, err)
	assert.Equal(t, "v2", records[0].SchemaVersion)
}

func TestUnknownShapeFailsRecord(t *testing.T) {
	ctx := context.Background()
	engine, worker, store := newEngine(t)
	id := testsupport.StageRecord(t, store, "77", staging.SourceAT, `{"unexpected":true}`)

	_, err := worker.Drain(ctx)
	require.NoError(t, err)

	rec, err := store.Get(ctx, staging.SourceAT, id)
	require.NoError(t, err)
	assert.Equal(t, staging.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "matches no known version")

	count, err := engine.PropagationCount(ctx, transform.EntityTaxYear, staging.SourceAT)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMissingYearFailsRecord(t *testing.T) {
	ctx := context.Background()
	engine, _, store := newEngine(t)
	id := testsupport.StageRecord(t, store, "78", staging.SourceTRT, `{"records":[{"year":"n/a","agi":1}]}`)
	rec, err := store.Get(ctx, staging.SourceTRT, id)
	require.NoError(t, err)

	status, err := engine.Process(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, staging.StatusFailed, status)
}

func TestReprocessingReplacesDerivedRecords(t *testing.T) {
	ctx := context.Background()
	engine, worker, store := newEngine(t)
	testsupport.StageRecord(t, store, "5", staging.SourceTRT, testsupport.TRTPayload)
	_, err := worker.Drain(ctx)
	require.NoError(t, err)

	replayed, err := store.Replay(ctx, staging.SourceTRT, staging.ForWorkUnit("5"))
	require.NoError(t, err)
	require.Equal(t, int64(1), replayed)
	_, err = worker.Drain(ctx)
	require.NoError(t, err)

	count, err := engine.PropagationCount(ctx, transform.EntityTaxYear, staging.SourceTRT)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestComputations(t *testing.T) {
	ctx := context.Background()
	engine, worker, store := newEngine(t)
	stageAll(t, store, "1295022")
	_, err := worker.Drain(ctx)
	require.NoError(t, err)

	income, err := engine.Compute(ctx, transform.ComputeTotalMonthlyIncome, "1295022")
	require.NoError(t, err)
	assert.Equal(t, 4583.0, income)

	disposable, err := engine.Compute(ctx, transform.ComputeDisposableIncome, "1295022")
	require.NoError(t, err)
	assert.Equal(t, 2283.0, disposable)

	se, err := engine.Compute(ctx, transform.ComputeSETax, "1295022")
	require.NoError(t, err)
	require.IsType(t, transform.SETax{}, se)
	assert.Equal(t, 2022, se.(transform.SETax).TaxYear)
	assert.True(t, se.(transform.SETax).Computed)
	assert.InDelta(t, 2825.91, se.(transform.SETax).Amount, 0.011)

	balance, err := engine.Compute(ctx, transform.ComputeAccountBalance, "1295022")
	require.NoError(t, err)
	assert.Equal(t, 1875.25, balance.(transform.AccountBalance).Total)

	csed, err := engine.Compute(ctx, transform.ComputeCSEDDate, "1295022")
	require.NoError(t, err)
	assert.Equal(t, "2032-06-01", csed.(transform.CSED).Earliest)
	assert.Equal(t, "2033-05-16", csed.(transform.CSED).ByYear["2022"])

	summary, err := engine.Compute(ctx, transform.ComputeCaseSummary, "1295022")
	require.NoError(t, err)
	assert.Equal(t, []int{2022, 2021}, summary.(transform.CaseSummary).TaxYears)
	assert.Equal(t, 2, summary.(transform.CaseSummary).IncomeDocuments)
	assert.True(t, summary.(transform.CaseSummary).HasInterview)

	sample, ok, err := engine.SampleWorkUnit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1295022", sample)
}

func TestComputationsReportUnresolvedInputs(t *testing.T) {
	ctx := context.Background()
	engine, worker, store := newEngine(t)
	testsupport.StageRecord(t, store, "9", staging.SourceInterview, `{"household":{"state":"OH"}}`)
	_, err := worker.Drain(ctx)
	require.NoError(t, err)

	for _, name := range engine.Computations() {
		_, err := engine.Compute(ctx, name, "9")
		if name == transform.ComputeCaseSummary {
			assert.NoError(t, err)
			continue
		}
		assert.ErrorIs(t, err, schema.ErrUnresolvedField, name)
	}

	_, err = engine.Compute(ctx, "nope", "9")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestSampleWorkUnitEmpty(t *testing.T) {
	engine, _, _ := newEngine(t)
	_, ok, err := engine.SampleWorkUnit(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkerLoopProcessesInBackground(t *testing.T) {
	ctx := context.Background()
	_, worker, store := newEngine(t)
	var observed []staging.SourceType
	done := make(chan struct{}, 1)
	worker.SetObserver(func(source staging.SourceType, status staging.Status, _ time.Duration) {
		observed = append(observed, source)
		if status == staging.StatusCompleted {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop()
	require.Error(t, worker.Start(ctx))

	id := testsupport.StageRecord(t, store, "42", staging.SourceWI, testsupport.WIPayload)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not process the staged record")
	}
	worker.Stop()
	assert.False(t, worker.Running())
	assert.Equal(t, []staging.SourceType{staging.SourceWI}, observed)

	rec, err := store.Get(ctx, staging.SourceWI, id)
	require.NoError(t, err)
	assert.Equal(t, staging.StatusCompleted, rec.Status)
}
