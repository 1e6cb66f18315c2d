package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/blobstore"
	"caseflow/internal/ingest"
	"caseflow/internal/orchestrator"
	"caseflow/internal/sources"
	"caseflow/internal/staging"
	"caseflow/internal/testsupport"
)

type transcriptSource struct {
	err error
}

func (s transcriptSource) Name() string { return "fake/at" }

func (s transcriptSource) Fetch(_ context.Context, caseNumber string) (sources.Payload, error) {
	if s.err != nil {
		return sources.Payload{}, s.err
	}
	return sources.Payload{Body: json.RawMessage(testsupport.ATPayload), APISource: "fake", Endpoint: "/analysis/at/" + caseNumber}, nil
}

func (s transcriptSource) HealthCheck(context.Context) error { return s.err }

type transcriptDocs struct{}

func (transcriptDocs) ListDocuments(context.Context, string) ([]sources.Document, error) {
	return []sources.Document{{FileName: "AT 2023.pdf", CaseDocumentID: "d1"}}, nil
}

func (transcriptDocs) DownloadDocument(_ context.Context, _ string, doc sources.Document) ([]byte, string, error) {
	return testsupport.FakePDF(doc.FileName), "/download", nil
}

type documentRig struct {
	orch  *orchestrator.Orchestrator
	blobs *blobstore.Store
	store *staging.Store
}

func newDocumentRig(t *testing.T, at sources.Client) documentRig {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	bucket, err := blobstore.NewFileBucket(cfg.Paths.BlobDir)
	require.NoError(t, err)
	blobs := blobstore.New(db, bucket, blobstore.Options{})
	store := staging.NewStore(db, nil)
	units := map[string]orchestrator.Unit{
		"ingest_at":        orchestrator.IngestUnit(ingest.NewAsset(staging.SourceAT, at, store, nil), ingest.SourceConfig{Required: true}),
		"ingest_documents": orchestrator.IngestUnit(ingest.NewDocumentAsset(transcriptDocs{}, blobs, nil, nil), ingest.SourceConfig{}),
	}
	orch := orchestrator.New(orchestrator.DefaultGraph(), units, orchestrator.NewRunStore(db), orchestrator.Options{MaxParallel: 4})
	return documentRig{orch: orch, blobs: blobs, store: store}
}

func TestDocumentsLinkToRecordStagedInSameRun(t *testing.T) {
	ctx := context.Background()
	rig := newDocumentRig(t, transcriptSource{})
	previous := testsupport.StageRecord(t, rig.store, "5520017", staging.SourceAT, testsupport.ATPayload)

	run, err := rig.orch.RunSync(ctx, orchestrator.Request{Key: "case_5520017", Kind: orchestrator.KindIngest, CaseNumber: "5520017"}, 5*time.Second)
	require.NoError(t, err)

	atOutcome, ok := run.Outcome("ingest_at")
	require.True(t, ok)
	atResult, ok := atOutcome.Detail.(ingest.Result)
	require.True(t, ok)
	require.Equal(t, ingest.StatusStored, atResult.Status)

	docOutcome, ok := run.Outcome("ingest_documents")
	require.True(t, ok)
	require.Equal(t, string(ingest.StatusStored), docOutcome.Status, docOutcome.Error)
	assert.False(t, docOutcome.StartedAt.Before(atOutcome.FinishedAt))
	docResult := docOutcome.Detail.(ingest.Result)
	require.Len(t, docResult.BlobIDs, 1)

	obj, err := rig.blobs.Get(ctx, docResult.BlobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, atResult.StagedRecordID, obj.ParsedRecordID)
	assert.NotEqual(t, previous, obj.ParsedRecordID)
}

func TestDocumentsAbortedWhenRequiredTranscriptFails(t *testing.T) {
	rig := newDocumentRig(t, transcriptSource{err: errors.New("tiparser down")})

	run, err := rig.orch.RunSync(context.Background(), orchestrator.Request{Key: "case_5520018", Kind: orchestrator.KindIngest, CaseNumber: "5520018"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RunFailed, run.Status)
	docs, ok := run.Outcome("ingest_documents")
	require.True(t, ok)
	assert.Equal(t, orchestrator.OutcomeAborted, docs.Status)
	assert.Contains(t, docs.Error, "ingest_at")
}
