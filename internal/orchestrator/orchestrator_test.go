package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/ingest"
	"caseflow/internal/orchestrator"
	"caseflow/internal/services"
	"caseflow/internal/testsupport"
)

const testGraph = `units:
  - {name: ingest_at, kind: ingest, source: at}
  - {name: ingest_wi, kind: ingest, source: wi}
  - {name: ingest_interview, kind: ingest, source: interview}
  - {name: ingest_followup, kind: ingest, source: trt, depends_on: [ingest_at]}
  - {name: health_staging, kind: health, stage: staging, depends_on: [ingest_at]}
`

func status(s string) orchestrator.Unit {
	return orchestrator.UnitFunc(func(context.Context, orchestrator.Request) orchestrator.Outcome {
		out := orchestrator.Outcome{Status: s}
		if s == orchestrator.OutcomeFailed || s == string(ingest.StatusSkipped) {
			out.Error = s + " on purpose"
		}
		return out
	})
}

func newOrchestrator(t *testing.T, graphYAML string, units map[string]orchestrator.Unit, parallel int) *orchestrator.Orchestrator {
	t.Helper()
	graph, err := orchestrator.ParseGraph([]byte(graphYAML))
	require.NoError(t, err)
	db := testsupport.MustOpenDB(t, testsupport.NewConfig(t))
	return orchestrator.New(graph, units, orchestrator.NewRunStore(db), orchestrator.Options{MaxParallel: parallel})
}

func TestOptionalSkipDoesNotAbortSiblings(t *testing.T) {
	o := newOrchestrator(t, testGraph, map[string]orchestrator.Unit{
		"ingest_at":        status("stored"),
		"ingest_wi":        status("skipped"),
		"ingest_interview": status("stored"),
		"ingest_followup":  status("stored"),
		"health_staging":   status("healthy"),
	}, 4)

	run, err := o.RunSync(context.Background(), orchestrator.Request{Key: "case_1", Kind: "", CaseNumber: "1"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RunCompleted, run.Status)
	for unit, want := range map[string]string{"ingest_at": "stored", "ingest_wi": "skipped", "ingest_interview": "stored", "ingest_followup": "stored"} {
		got, ok := run.Outcome(unit)
		require.True(t, ok, unit)
		assert.Equal(t, want, got.Status, unit)
	}
}

func TestHardFailureAbortsIngestDependentsButNotMonitors(t *testing.T) {
	o := newOrchestrator(t, testGraph, map[string]orchestrator.Unit{
		"ingest_at":        status(orchestrator.OutcomeFailed),
		"ingest_wi":        status("stored"),
		"ingest_interview": status("stored"),
		"ingest_followup":  status("stored"),
		"health_staging":   status("degraded"),
	}, 4)

	run, err := o.RunSync(context.Background(), orchestrator.Request{Key: "case_2", CaseNumber: "2"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RunFailed, run.Status)
	assert.Contains(t, run.Error, "ingest_at")

	followup, _ := run.Outcome("ingest_followup")
	assert.Equal(t, orchestrator.OutcomeAborted, followup.Status)
	wi, _ := run.Outcome("ingest_wi")
	assert.Equal(t, "stored", wi.Status)
	health, _ := run.Outcome("health_staging")
	assert.Equal(t, "degraded", health.Status)

	stored, err := o.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RunFailed, stored.Status)
	assert.Len(t, stored.Outcomes, 5)
}

func TestDuplicateKeyWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	blocking := orchestrator.UnitFunc(func(ctx context.Context, _ orchestrator.Request) orchestrator.Outcome {
		calls.Add(1)
		<-release
		return orchestrator.Outcome{Status: "stored"}
	})
	o := newOrchestrator(t, "units:\n  - {name: ingest_at, kind: ingest, source: at}\n",
		map[string]orchestrator.Unit{"ingest_at": blocking}, 2)
	ctx := context.Background()

	first, err := o.Submit(ctx, orchestrator.Request{Key: "case_9", Kind: orchestrator.KindIngest, CaseNumber: "9"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RunRunning, first.Status)

	second, err := o.Submit(ctx, orchestrator.Request{Key: "case_9", Kind: orchestrator.KindIngest, CaseNumber: "9"})
	require.ErrorIs(t, err, services.ErrDuplicateRun)
	assert.Equal(t, first.ID, second.ID)
	id, ok := o.InFlight("case_9")
	assert.True(t, ok)
	assert.Equal(t, first.ID, id)

	close(release)
	done, err := o.Wait(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RunCompleted, done.Status)
	require.NoError(t, o.Drain(ctx))

	_, ok = o.InFlight("case_9")
	assert.False(t, ok)
	third, err := o.Submit(ctx, orchestrator.Request{Key: "case_9", Kind: orchestrator.KindIngest, CaseNumber: "9"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	require.NoError(t, o.Drain(ctx))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSyncTimeoutLeavesRunRetrievable(t *testing.T) {
	release := make(chan struct{})
	o := newOrchestrator(t, "units:\n  - {name: ingest_at, kind: ingest, source: at}\n",
		map[string]orchestrator.Unit{"ingest_at": orchestrator.UnitFunc(func(context.Context, orchestrator.Request) orchestrator.Outcome {
			<-release
			return orchestrator.Outcome{Status: "stored"}
		})}, 1)
	ctx := context.Background()

	run, err := o.RunSync(ctx, orchestrator.Request{Key: "case_3", Kind: orchestrator.KindIngest}, 20*time.Millisecond)
	require.ErrorIs(t, err, services.ErrTimeout)
	assert.Equal(t, orchestrator.RunRunning, run.Status)

	close(release)
	require.NoError(t, o.Drain(ctx))
	later, err := o.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RunCompleted, later.Status)
	require.NotNil(t, later.FinishedAt)
}

func TestParallelismIsBounded(t *testing.T) {
	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	unit := orchestrator.UnitFunc(func(context.Context, orchestrator.Request) orchestrator.Outcome {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return orchestrator.Outcome{Status: "stored"}
	})
	o := newOrchestrator(t, testGraph, map[string]orchestrator.Unit{
		"ingest_at": unit, "ingest_wi": unit, "ingest_interview": unit, "ingest_followup": unit, "health_staging": unit,
	}, 2)

	_, err := o.RunSync(context.Background(), orchestrator.Request{Key: "k"}, 5*time.Second)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestPanicAndUnboundUnits(t *testing.T) {
	o := newOrchestrator(t, testGraph, map[string]orchestrator.Unit{
		"ingest_at": orchestrator.UnitFunc(func(context.Context, orchestrator.Request) orchestrator.Outcome {
			panic("boom")
		}),
	}, 2)
	var finished []orchestrator.Run
	o.OnFinish(func(run orchestrator.Run) { finished = append(finished, run) })

	run, err := o.RunSync(context.Background(), orchestrator.Request{Key: "p", Kind: orchestrator.KindIngest}, 5*time.Second)
	require.NoError(t, err)
	at, _ := run.Outcome("ingest_at")
	assert.Equal(t, orchestrator.OutcomeFailed, at.Status)
	assert.Contains(t, at.Error, "boom")
	wi, _ := run.Outcome("ingest_wi")
	assert.Equal(t, orchestrator.OutcomeSkipped, wi.Status)
	assert.Equal(t, "unit not enabled", wi.Error)
	require.Len(t, finished, 1)
	assert.Equal(t, run.ID, finished[0].ID)
}

func TestSubmitValidation(t *testing.T) {
	o := newOrchestrator(t, testGraph, nil, 1)
	_, err := o.Submit(context.Background(), orchestrator.Request{})
	assert.True(t, errors.Is(err, services.ErrValidation))
	_, err = o.Submit(context.Background(), orchestrator.Request{Key: "x", Units: []string{"ghost"}})
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestMarkInterrupted(t *testing.T) {
	release := make(chan struct{})
	graph, err := orchestrator.ParseGraph([]byte("units:\n  - {name: ingest_at, kind: ingest, source: at}\n"))
	require.NoError(t, err)
	db := testsupport.MustOpenDB(t, testsupport.NewConfig(t))
	runs := orchestrator.NewRunStore(db)
	o := orchestrator.New(graph, map[string]orchestrator.Unit{"ingest_at": orchestrator.UnitFunc(func(context.Context, orchestrator.Request) orchestrator.Outcome {
		<-release
		return orchestrator.Outcome{Status: "stored"}
	})}, runs, orchestrator.Options{})
	run, err := o.Submit(context.Background(), orchestrator.Request{Key: "case_4", CaseNumber: "4"})
	require.NoError(t, err)

	n, err := runs.MarkInterrupted(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	stored, err := runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RunFailed, stored.Status)

	listed, err := runs.List(context.Background(), "4", 5)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	close(release)
	require.NoError(t, o.Drain(context.Background()))
}
