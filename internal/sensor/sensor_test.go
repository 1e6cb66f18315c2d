package sensor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/orchestrator"
	"caseflow/internal/sensor"
	"caseflow/internal/services"
	"caseflow/internal/staging"
	"caseflow/internal/testsupport"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	inflight map[string]string
	requests []orchestrator.Request
	fail     map[string]error
}

func newSubmitter() *fakeSubmitter {
	return &fakeSubmitter{inflight: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeSubmitter) Submit(_ context.Context, req orchestrator.Request) (orchestrator.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[req.CaseNumber]; err != nil {
		return orchestrator.Run{}, err
	}
	if id, ok := f.inflight[req.Key]; ok {
		return orchestrator.Run{ID: id, Key: req.Key}, services.Wrap(services.ErrDuplicateRun, "orchestrator", "submit", "in flight", nil)
	}
	id := "run-" + req.CaseNumber
	f.inflight[req.Key] = id
	f.requests = append(f.requests, req)
	return orchestrator.Run{ID: id, Key: req.Key, Status: orchestrator.RunRunning}, nil
}

func newSensor(t *testing.T, submitter sensor.Submitter) (*sensor.Sensor, *staging.Store) {
	t.Helper()
	store, _ := testsupport.MustOpenStaging(t)
	s := sensor.New(store, submitter, sensor.Options{
		Interval:      time.Hour,
		InitialCursor: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	return s, store
}

func TestQuietEvaluationsAreNoOpAndAdvanceCursor(t *testing.T) {
	ctx := context.Background()
	s, store := newSensor(t, newSubmitter())

	first, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, sensor.StatusNoOp, first.Status)
	assert.Empty(t, first.Triggers)
	assert.True(t, first.CursorTo.After(first.CursorFrom))

	second, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, sensor.StatusNoOp, second.Status)
	assert.Equal(t, first.CursorTo, second.CursorFrom)
	assert.True(t, second.CursorTo.After(first.CursorTo), "cursor must strictly increase")

	stored, ok, err := store.LoadCursor(ctx, sensor.CursorName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.Equal(second.CursorTo))
}

func TestNewCasesTriggerOnceAndDeduplicate(t *testing.T) {
	ctx := context.Background()
	submitter := newSubmitter()
	s, store := newSensor(t, submitter)

	_, err := store.RegisterWorkUnit(ctx, "1295022", "Smith household")
	require.NoError(t, err)
	_, err = store.RegisterWorkUnit(ctx, "1295023", "")
	require.NoError(t, err)
	// Ingestion-created units are not the sensor's concern.
	_, err = store.EnsureWorkUnit(ctx, "777", "", staging.OriginTrigger)
	require.NoError(t, err)

	result, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, sensor.StatusTriggered, result.Status)
	require.Len(t, result.Triggers, 2)
	assert.Equal(t, 2, result.Submitted())
	require.Len(t, submitter.requests, 2)
	assert.Equal(t, "case_1295022", submitter.requests[0].Key)
	assert.Equal(t, orchestrator.KindIngest, submitter.requests[0].Kind)
	assert.Equal(t, "Smith household", submitter.requests[0].Label)
	assert.Equal(t, "CASE-1295023", submitter.requests[1].Label)

	again, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, sensor.StatusNoOp, again.Status)
	assert.Len(t, submitter.requests, 2)

	// A case registered while its run is still in flight is dropped, not queued.
	submitter.inflight["case_555"] = "run-existing"
	_, err = store.RegisterWorkUnit(ctx, "555", "")
	require.NoError(t, err)
	result, err = s.Evaluate(ctx)
	require.NoError(t, err)
	require.Len(t, result.Triggers, 1)
	assert.True(t, result.Triggers[0].Deduplicated)
	assert.Equal(t, "run-existing", result.Triggers[0].RunID)
	assert.Equal(t, 0, result.Submitted())
	assert.Len(t, submitter.requests, 2)
}

func TestSubmitFailureStillAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	submitter := newSubmitter()
	submitter.fail["42"] = errors.New("storage offline")
	s, store := newSensor(t, submitter)

	_, err := store.RegisterWorkUnit(ctx, "42", "")
	require.NoError(t, err)

	var observed []sensor.Result
	s.SetObserver(func(r sensor.Result) { observed = append(observed, r) })

	result, err := s.Evaluate(ctx)
	require.NoError(t, err)
	require.Len(t, result.Triggers, 1)
	assert.Contains(t, result.Triggers[0].Error, "storage offline")
	assert.Equal(t, 0, result.Submitted())

	next, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, sensor.StatusNoOp, next.Status)
	assert.Len(t, observed, 2)
}

func TestInitialCursorHidesOlderCases(t *testing.T) {
	ctx := context.Background()
	submitter := newSubmitter()
	store, _ := testsupport.MustOpenStaging(t)
	_, err := store.RegisterWorkUnit(ctx, "old", "")
	require.NoError(t, err)

	s := sensor.New(store, submitter, sensor.Options{InitialCursor: time.Now().Add(time.Hour)})
	result, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, sensor.StatusNoOp, result.Status)
	assert.Empty(t, submitter.requests)
	assert.True(t, result.CursorTo.After(result.CursorFrom))
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newSensor(t, newSubmitter())
	ctx, cancel := context.WithCancel(context.Background())
	evaluated := make(chan struct{}, 1)
	s.SetObserver(func(sensor.Result) {
		select {
		case evaluated <- struct{}{}:
		default:
		}
	})
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-evaluated:
	case <-time.After(2 * time.Second):
		t.Fatal("sensor never evaluated")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sensor did not stop")
	}
}
