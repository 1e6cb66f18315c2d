package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/ingest"
	"caseflow/internal/services"
	"caseflow/internal/sources"
	"caseflow/internal/staging"
	"caseflow/internal/testsupport"
)

type fakeClient struct {
	name  string
	body  string
	err   error
	block bool
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Fetch(ctx context.Context, caseNumber string) (sources.Payload, error) {
	if f.block {
		<-ctx.Done()
		return sources.Payload{}, ctx.Err()
	}
	if f.err != nil {
		return sources.Payload{}, f.err
	}
	return sources.Payload{Body: json.RawMessage(f.body), APISource: "fake", Endpoint: "/analysis/" + caseNumber}, nil
}

func (f *fakeClient) HealthCheck(context.Context) error { return f.err }

type brokenStager struct{}

func (brokenStager) Store(context.Context, string, staging.SourceType, json.RawMessage, staging.Provenance) (string, error) {
	return "", services.Wrap(services.ErrStorageUnavailable, "staging", "store", "", errors.New("disk gone"))
}

var unit = ingest.WorkUnit{CaseNumber: "1295022"}

func TestRunStoresPayload(t *testing.T) {
	store, _ := testsupport.MustOpenStaging(t)
	asset := ingest.NewAsset(staging.SourceAT, &fakeClient{name: "tiparser/at", body: testsupport.ATPayload}, store, nil)

	result := asset.Run(context.Background(), unit, ingest.SourceConfig{Required: true, Timeout: time.Second})
	require.Equal(t, ingest.StatusStored, result.Status, result.Error)
	assert.NotEmpty(t, result.StagedRecordID)
	assert.Equal(t, "/analysis/1295022", result.Endpoint)

	rec, err := store.Get(context.Background(), staging.SourceAT, result.StagedRecordID)
	require.NoError(t, err)
	assert.Equal(t, staging.StatusPending, rec.Status)
	assert.Equal(t, "fake", rec.APISource)
	assert.JSONEq(t, testsupport.ATPayload, string(rec.Payload))
}

func TestOptionalFailureIsSkipped(t *testing.T) {
	store, _ := testsupport.MustOpenStaging(t)
	cause := services.Wrap(services.ErrTransientSource, "tiparser", "fetch", "503", nil)
	asset := ingest.NewAsset(staging.SourceWI, &fakeClient{name: "tiparser/wi", err: cause}, store, nil)

	result := asset.Run(context.Background(), unit, ingest.SourceConfig{Required: false})
	assert.Equal(t, ingest.StatusSkipped, result.Status)
	assert.ErrorIs(t, result.Err, services.ErrOptionalSourceUnavailable)
	assert.ErrorIs(t, result.Err, services.ErrTransientSource)
	assert.Equal(t, "optional_source_unavailable", result.ErrorKind)
	assert.Empty(t, result.StagedRecordID)
}

func TestRequiredFailureFails(t *testing.T) {
	store, _ := testsupport.MustOpenStaging(t)
	cause := services.Wrap(services.ErrAuthExpired, "tiparser", "fetch", "403", nil)
	asset := ingest.NewAsset(staging.SourceAT, &fakeClient{name: "tiparser/at", err: cause}, store, nil)

	result := asset.Run(context.Background(), unit, ingest.SourceConfig{Required: true})
	assert.Equal(t, ingest.StatusFailed, result.Status)
	assert.Equal(t, "auth_expired", result.ErrorKind)
}

func TestFetchTimeout(t *testing.T) {
	store, _ := testsupport.MustOpenStaging(t)
	asset := ingest.NewAsset(staging.SourceAT, &fakeClient{name: "tiparser/at", block: true}, store, nil)

	result := asset.Run(context.Background(), unit, ingest.SourceConfig{Required: true, Timeout: 20 * time.Millisecond})
	assert.Equal(t, ingest.StatusFailed, result.Status)
	assert.ErrorIs(t, result.Err, services.ErrTimeout)
	assert.Less(t, result.Elapsed, 5*time.Second)
}

func TestStagingFailureIsFatalEvenWhenOptional(t *testing.T) {
	asset := ingest.NewAsset(staging.SourceInterview, &fakeClient{name: "casehelper/interview", body: `{}`}, brokenStager{}, nil)

	result := asset.Run(context.Background(), unit, ingest.SourceConfig{Required: false})
	assert.Equal(t, ingest.StatusFailed, result.Status)
	assert.ErrorIs(t, result.Err, services.ErrStorageUnavailable)
}
