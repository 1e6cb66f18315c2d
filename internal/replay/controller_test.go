package replay_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/replay"
	"caseflow/internal/services"
	"caseflow/internal/staging"
	"caseflow/internal/testsupport"
)

func TestReplaySpecificFailedRecord(t *testing.T) {
	ctx := context.Background()
	store, _ := testsupport.MustOpenStaging(t)
	id := testsupport.StageRecord(t, store, "1295022", staging.SourceAT, testsupport.ATPayload)
	require.NoError(t, store.MarkProcessed(ctx, staging.SourceAT, id, staging.StatusFailed, "bad shape"))

	controller := replay.New(store, nil)
	var observed replay.Result
	controller.SetObserver(func(r replay.Result) { observed = r })

	result, err := controller.Replay(ctx, replay.Request{Source: "AT", RecordID: id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	assert.Equal(t, "id:"+id, result.Selector)
	assert.Equal(t, result, observed)

	rec, err := store.Get(ctx, staging.SourceAT, id)
	require.NoError(t, err)
	assert.Equal(t, staging.StatusPending, rec.Status)
	assert.Empty(t, rec.Error)

	require.NoError(t, store.MarkProcessed(ctx, staging.SourceAT, id, staging.StatusCompleted, ""))
}

func TestReplayAcrossSources(t *testing.T) {
	ctx := context.Background()
	store, _ := testsupport.MustOpenStaging(t)
	at := testsupport.StageRecord(t, store, "1", staging.SourceAT, testsupport.ATPayload)
	wi := testsupport.StageRecord(t, store, "1", staging.SourceWI, testsupport.WIPayload)
	other := testsupport.StageRecord(t, store, "2", staging.SourceWI, testsupport.WIPayload)
	testsupport.StageRecord(t, store, "1", staging.SourceTRT, testsupport.TRTPayload)
	require.NoError(t, store.MarkProcessed(ctx, staging.SourceAT, at, staging.StatusCompleted, ""))
	require.NoError(t, store.MarkProcessed(ctx, staging.SourceWI, wi, staging.StatusFailed, "boom"))
	require.NoError(t, store.MarkProcessed(ctx, staging.SourceWI, other, staging.StatusFailed, "boom"))

	controller := replay.New(store, nil)

	result, err := controller.Replay(ctx, replay.Request{CaseNumber: "1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
	assert.Equal(t, map[staging.SourceType]int64{staging.SourceAT: 1, staging.SourceWI: 1}, result.Affected)

	result, err = controller.Replay(ctx, replay.Request{Failed: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	assert.Equal(t, int64(1), result.Affected[staging.SourceWI])
}

func TestReplayCreatesUnknownWorkUnit(t *testing.T) {
	ctx := context.Background()
	store, _ := testsupport.MustOpenStaging(t)
	controller := replay.New(store, nil)

	result, err := controller.Replay(ctx, replay.Request{CaseNumber: "404"})
	require.NoError(t, err)
	assert.Zero(t, result.Total)

	unit, err := store.GetWorkUnit(ctx, "404")
	require.NoError(t, err)
	assert.Equal(t, staging.OriginReplay, unit.Origin)
}

func TestReplayRejectsAmbiguousSelectors(t *testing.T) {
	store, _ := testsupport.MustOpenStaging(t)
	controller := replay.New(store, nil)
	for _, req := range []replay.Request{
		{},
		{RecordID: "x", CaseNumber: "1"},
		{CaseNumber: "1", Failed: true},
		{Source: "not a source", Failed: true},
	} {
		_, err := controller.Replay(context.Background(), req)
		assert.ErrorIs(t, err, services.ErrValidation, "%+v", req)
	}
}
