package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"caseflow/internal/logging"
	"caseflow/internal/services"
	"caseflow/internal/sources"
	"caseflow/internal/staging"
)

// Status is the outcome of one asset run.
type Status string

const (
	StatusStored  Status = "stored"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// WorkUnit identifies the case an asset runs for.
type WorkUnit struct {
	CaseNumber string
	Label      string
	// StagedRecords holds records staged for this case earlier in the same
	// run, by source.
	StagedRecords map[staging.SourceType]string
}

// SourceConfig is the per-run policy for a source.
type SourceConfig struct {
	Required bool
	Timeout  time.Duration
}

// Result reports what an asset run did.
type Result struct {
	Source         staging.SourceType `json:"source"`
	Status         Status             `json:"status"`
	StagedRecordID string             `json:"staged_record_id,omitempty"`
	Error          string             `json:"error,omitempty"`
	ErrorKind      string             `json:"error_kind,omitempty"`
	Elapsed        time.Duration      `json:"elapsed"`
	Endpoint       string             `json:"endpoint,omitempty"`
	BlobIDs        []string           `json:"blob_ids,omitempty"`
	Duplicates     int                `json:"duplicates,omitempty"`
	Err            error              `json:"-"`
}

// Stager is the slice of the staging store an asset writes through.
type Stager interface {
	Store(ctx context.Context, caseNumber string, source staging.SourceType, payload json.RawMessage, prov staging.Provenance) (string, error)
}

// Asset binds one source client to the staging store.
type Asset struct {
	source staging.SourceType
	client sources.Client
	store  Stager
	logger *slog.Logger
}

// NewAsset constructs the asset for source.
func NewAsset(source staging.SourceType, client sources.Client, store Stager, logger *slog.Logger) *Asset {
	return &Asset{
		source: source,
		client: client,
		store:  store,
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
}

// Source returns the source type this asset stages.
func (a *Asset) Source() staging.SourceType { return a.source }

// Run fetches the case's payload within cfg.Timeout and stages it.
func (a *Asset) Run(ctx context.Context, unit WorkUnit, cfg SourceConfig) Result {
	ctx = services.WithSourceType(services.WithWorkUnit(ctx, unit.CaseNumber), string(a.source))
	logger := logging.WithContext(ctx, a.logger)
	result := Result{Source: a.source}

	fetchCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	started := time.Now()
	payload, err := a.client.Fetch(fetchCtx, unit.CaseNumber)
	result.Elapsed = time.Since(started)
	if err == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		err = fetchCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
			err = services.Wrap(services.ErrTimeout, "ingest", "fetch", fmt.Sprintf("%s exceeded %s", a.client.Name(), cfg.Timeout), err)
		}
		if !cfg.Required {
			err = services.Wrap(services.ErrOptionalSourceUnavailable, "ingest", "fetch", a.client.Name(), err)
			result.finish(StatusSkipped, err)
			logging.WarnWithContext(logger, "optional source skipped", "ingest_skipped",
				logging.Error(err),
				logging.Duration("elapsed", result.Elapsed),
				logging.String(logging.FieldErrorHint, "check source availability; the case can be re-ingested later"),
				logging.String(logging.FieldImpact, "case is staged without this source"),
			)
			return result
		}
		result.finish(StatusFailed, err)
		logging.ErrorWithContext(logger, "required source fetch failed", "ingest_failed",
			logging.Error(err),
			logging.Duration("elapsed", result.Elapsed),
			logging.String(logging.FieldErrorHint, "check source credentials and connectivity"),
		)
		return result
	}
	result.Endpoint = payload.Endpoint

	id, err := a.store.Store(ctx, unit.CaseNumber, a.source, payload.Body, staging.Provenance{
		APISource:   payload.APISource,
		APIEndpoint: payload.Endpoint,
		CreatedBy:   "system",
	})
	if err != nil {
		result.finish(StatusFailed, err)
		logging.ErrorWithContext(logger, "fetched payload could not be staged", "ingest_stage_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging database; the fetched payload was lost"),
		)
		return result
	}
	result.StagedRecordID = id
	result.Status = StatusStored
	logger.Info("source payload staged",
		logging.String(logging.FieldRecordID, id),
		logging.Duration("elapsed", result.Elapsed),
		logging.Int("payload_bytes", len(payload.Body)),
		logging.String(logging.FieldEventType, "ingest_stored"),
	)
	return result
}

func (r *Result) finish(status Status, err error) {
	r.Status = status
	r.Err = err
	r.Error = err.Error()
	r.ErrorKind = services.Kind(err)
}
