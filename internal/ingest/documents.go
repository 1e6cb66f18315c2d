package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"caseflow/internal/blobstore"
	"caseflow/internal/logging"
	"caseflow/internal/services"
	"caseflow/internal/sources"
	"caseflow/internal/staging"
)

// SourceDocuments is the staging source name reported by DocumentAsset.
const SourceDocuments staging.SourceType = "documents"

// DocumentSource lists and downloads a case's stored documents.
type DocumentSource interface {
	ListDocuments(ctx context.Context, caseNumber string) ([]sources.Document, error)
	DownloadDocument(ctx context.Context, caseNumber string, doc sources.Document) ([]byte, string, error)
}

// BlobWriter is the slice of the blob store DocumentAsset needs.
type BlobWriter interface {
	Upload(ctx context.Context, req blobstore.UploadRequest) (blobstore.UploadResult, error)
	LinkToParsedRecord(ctx context.Context, id, stagedRecordID string) error
}

// RecordLister finds the staged record a transcript PDF belongs to.
type RecordLister interface {
	ListByWorkUnit(ctx context.Context, source staging.SourceType, caseNumber string, limit int) ([]staging.Record, error)
}

// DocumentAsset copies a case's transcript PDFs into the blob store. Listing
// and download failures report skipped unless the source is required; blob
// storage failures always fail the asset.
type DocumentAsset struct {
	docs    DocumentSource
	blobs   BlobWriter
	records RecordLister
	logger  *slog.Logger
}

// NewDocumentAsset constructs the transcript document asset. records may be nil.
func NewDocumentAsset(docs DocumentSource, blobs BlobWriter, records RecordLister, logger *slog.Logger) *DocumentAsset {
	return &DocumentAsset{docs: docs, blobs: blobs, records: records, logger: logging.NewComponentLogger(logger, "ingest")}
}

// Run downloads every transcript PDF of the case and uploads it with its
// year as sub-grouping. Content already stored is reported as a duplicate.
func (a *DocumentAsset) Run(ctx context.Context, unit WorkUnit, cfg SourceConfig) Result {
	ctx = services.WithSourceType(services.WithWorkUnit(ctx, unit.CaseNumber), string(SourceDocuments))
	logger := logging.WithContext(ctx, a.logger)
	result := Result{Source: SourceDocuments}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	started := time.Now()

	unavailable := func(err error) Result {
		result.Elapsed = time.Since(started)
		if cfg.Required {
			result.finish(StatusFailed, err)
			logging.ErrorWithContext(logger, "required transcript documents unavailable", "ingest_documents_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check CaseHelper credentials and the case's document list"),
			)
			return result
		}
		err = services.Wrap(services.ErrOptionalSourceUnavailable, "ingest", "documents", "", err)
		result.finish(StatusSkipped, err)
		logging.WarnWithContext(logger, "transcript documents skipped", "ingest_documents_skipped",
			logging.Error(err),
			logging.Int("uploaded", len(result.BlobIDs)),
			logging.String(logging.FieldImpact, "transcript PDFs missing from blob storage"),
		)
		return result
	}

	listing, err := a.docs.ListDocuments(ctx, unit.CaseNumber)
	if err != nil {
		return unavailable(err)
	}
	transcripts := sources.FilterTranscripts(listing)
	if len(transcripts) == 0 {
		return unavailable(fmt.Errorf("no transcript documents among %d files", len(listing)))
	}
	for _, file := range transcripts {
		content, endpoint, err := a.docs.DownloadDocument(ctx, unit.CaseNumber, file.Document)
		if err != nil {
			return unavailable(fmt.Errorf("download %s: %w", file.Document.FileName, err))
		}
		uploaded, err := a.blobs.Upload(ctx, blobstore.UploadRequest{
			Content:     content,
			WorkUnit:    unit.CaseNumber,
			Category:    blobstore.ParseCategory(file.Kind),
			FileName:    file.Document.FileName,
			Subcategory: strconv.Itoa(file.Year),
			MediaType:   "application/pdf",
			SourceURL:   endpoint,
			Metadata: map[string]string{
				"case_document_id": file.Document.CaseDocumentID,
				"transcript_kind":  file.Kind,
				"tax_year":         strconv.Itoa(file.Year),
			},
		})
		if err != nil {
			result.Elapsed = time.Since(started)
			result.finish(StatusFailed, fmt.Errorf("upload %s: %w", file.Document.FileName, err))
			logging.ErrorWithContext(logger, "downloaded transcript could not be stored", "ingest_documents_store_failed",
				logging.Error(result.Err),
				logging.Int("uploaded", len(result.BlobIDs)),
				logging.String(logging.FieldErrorHint, "check blob storage and its database; the downloaded PDF was lost"),
			)
			return result
		}
		result.BlobIDs = append(result.BlobIDs, uploaded.ID)
		if uploaded.IsDuplicate {
			result.Duplicates++
		}
		a.link(ctx, logger, unit, file, uploaded)
	}
	result.Status = StatusStored
	result.Elapsed = time.Since(started)
	logger.Info("transcript documents stored",
		logging.Int("documents", len(result.BlobIDs)),
		logging.Int("duplicates", result.Duplicates),
		logging.String(logging.FieldEventType, "ingest_documents_stored"),
	)
	return result
}

// link annotates a fresh upload with the staged record of the same transcript
// kind. A record staged earlier in the same run wins over the newest stored one.
func (a *DocumentAsset) link(ctx context.Context, logger *slog.Logger, unit WorkUnit, file sources.TranscriptFile, uploaded blobstore.UploadResult) {
	if uploaded.ParsedRecordID != "" {
		return
	}
	source, err := staging.ParseSourceType(file.Kind)
	if err != nil {
		return
	}
	recordID := unit.StagedRecords[source]
	if recordID == "" {
		if a.records == nil {
			return
		}
		records, err := a.records.ListByWorkUnit(ctx, source, unit.CaseNumber, 1)
		if err != nil || len(records) == 0 {
			return
		}
		recordID = records[0].ID
	}
	if err := a.blobs.LinkToParsedRecord(ctx, uploaded.ID, recordID); err != nil {
		logging.WarnWithContext(logger, "blob link failed", "blob_link_failed",
			logging.String(logging.FieldBlobID, uploaded.ID),
			logging.String(logging.FieldRecordID, recordID),
			logging.Error(err),
		)
	}
}
