package ingest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/blobstore"
	"caseflow/internal/ingest"
	"caseflow/internal/services"
	"caseflow/internal/sources"
	"caseflow/internal/staging"
	"caseflow/internal/testsupport"
)

type fakeDocuments struct {
	listing []sources.Document
	listErr error
}

func (f *fakeDocuments) ListDocuments(context.Context, string) ([]sources.Document, error) {
	return f.listing, f.listErr
}

func (f *fakeDocuments) DownloadDocument(_ context.Context, caseNumber string, doc sources.Document) ([]byte, string, error) {
	return testsupport.FakePDF(doc.FileName), "/v2/blobs/" + caseNumber + "/download", nil
}

func newBlobStore(t *testing.T) (*blobstore.Store, *staging.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	bucket, err := blobstore.NewFileBucket(cfg.Paths.BlobDir)
	require.NoError(t, err)
	return blobstore.New(db, bucket, blobstore.Options{}), staging.NewStore(db, nil)
}

func TestDocumentAssetUploadsTranscripts(t *testing.T) {
	ctx := context.Background()
	blobs, store := newBlobStore(t)
	atID := testsupport.StageRecord(t, store, unit.CaseNumber, staging.SourceAT, testsupport.ATPayload)
	docs := &fakeDocuments{listing: []sources.Document{
		{FileName: "WI 2022.pdf", CaseDocumentID: "d1"},
		{FileName: "notes.docx", CaseDocumentID: "d2"},
		{FileName: "AT 21 E.pdf", CaseDocumentID: "d3"},
	}}
	asset := ingest.NewDocumentAsset(docs, blobs, store, nil)

	result := asset.Run(ctx, unit, ingest.SourceConfig{})
	require.Equal(t, ingest.StatusStored, result.Status, result.Error)
	require.Len(t, result.BlobIDs, 2)
	assert.Zero(t, result.Duplicates)

	objects, err := blobs.ListByWorkUnit(ctx, unit.CaseNumber)
	require.NoError(t, err)
	paths := map[string]blobstore.Object{}
	for _, obj := range objects {
		paths[obj.StoragePath] = obj
	}
	require.Contains(t, paths, "1295022/AT/2021/AT 21 E.pdf")
	require.Contains(t, paths, "1295022/WI/2022/WI 2022.pdf")
	assert.Equal(t, atID, paths["1295022/AT/2021/AT 21 E.pdf"].ParsedRecordID)
	assert.Equal(t, blobstore.StatusParsed, paths["1295022/AT/2021/AT 21 E.pdf"].ProcessingStatus)
	assert.Empty(t, paths["1295022/WI/2022/WI 2022.pdf"].ParsedRecordID)

	again := asset.Run(ctx, unit, ingest.SourceConfig{})
	require.Equal(t, ingest.StatusStored, again.Status)
	assert.Equal(t, 2, again.Duplicates)
	assert.ElementsMatch(t, result.BlobIDs, again.BlobIDs)
}

func TestDocumentAssetSkipsOnFailure(t *testing.T) {
	blobs, _ := newBlobStore(t)

	listFails := ingest.NewDocumentAsset(&fakeDocuments{listErr: errors.New("login refused")}, blobs, nil, nil)
	result := listFails.Run(context.Background(), unit, ingest.SourceConfig{})
	assert.Equal(t, ingest.StatusSkipped, result.Status)
	assert.ErrorIs(t, result.Err, services.ErrOptionalSourceUnavailable)

	empty := ingest.NewDocumentAsset(&fakeDocuments{listing: []sources.Document{{FileName: "letter.pdf"}}}, blobs, nil, nil)
	result = empty.Run(context.Background(), unit, ingest.SourceConfig{})
	assert.Equal(t, ingest.StatusSkipped, result.Status)
	assert.Contains(t, result.Error, "no transcript documents")
}

type failingBlobs struct {
	uploads int
}

func (f *failingBlobs) Upload(context.Context, blobstore.UploadRequest) (blobstore.UploadResult, error) {
	f.uploads++
	return blobstore.UploadResult{}, services.Wrap(services.ErrStorageUnavailable, "blobstore", "upload", "", errors.New("db down"))
}

func (f *failingBlobs) LinkToParsedRecord(context.Context, string, string) error { return nil }

func TestDocumentAssetStorageFailureIsFatal(t *testing.T) {
	docs := &fakeDocuments{listing: []sources.Document{{FileName: "AT 2023.pdf", CaseDocumentID: "d1"}}}
	for _, required := range []bool{false, true} {
		blobs := &failingBlobs{}
		asset := ingest.NewDocumentAsset(docs, blobs, nil, nil)

		result := asset.Run(context.Background(), unit, ingest.SourceConfig{Required: required})
		assert.Equal(t, ingest.StatusFailed, result.Status, "required=%v", required)
		assert.ErrorIs(t, result.Err, services.ErrStorageUnavailable)
		assert.NotErrorIs(t, result.Err, services.ErrOptionalSourceUnavailable)
		assert.Equal(t, 1, blobs.uploads)
	}
}

func TestDocumentAssetRequiredListingFailureFails(t *testing.T) {
	blobs, _ := newBlobStore(t)
	asset := ingest.NewDocumentAsset(&fakeDocuments{listErr: errors.New("login refused")}, blobs, nil, nil)

	result := asset.Run(context.Background(), unit, ingest.SourceConfig{Required: true})
	assert.Equal(t, ingest.StatusFailed, result.Status)
	assert.NotErrorIs(t, result.Err, services.ErrOptionalSourceUnavailable)
	assert.Contains(t, result.Error, "login refused")
}

func TestDocumentAssetPrefersRecordStagedInRun(t *testing.T) {
	ctx := context.Background()
	blobs, store := newBlobStore(t)
	older := testsupport.StageRecord(t, store, unit.CaseNumber, staging.SourceAT, testsupport.ATPayload)
	current := testsupport.StageRecord(t, store, unit.CaseNumber, staging.SourceAT, testsupport.ATPayload)
	docs := &fakeDocuments{listing: []sources.Document{{FileName: "AT 2023.pdf", CaseDocumentID: "d1"}}}
	asset := ingest.NewDocumentAsset(docs, blobs, store, nil)

	inRun := unit
	inRun.StagedRecords = map[staging.SourceType]string{staging.SourceAT: older}
	result := asset.Run(ctx, inRun, ingest.SourceConfig{})
	require.Equal(t, ingest.StatusStored, result.Status, result.Error)
	require.Len(t, result.BlobIDs, 1)

	obj, err := blobs.Get(ctx, result.BlobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, older, obj.ParsedRecordID)
	assert.NotEqual(t, current, obj.ParsedRecordID)
}
