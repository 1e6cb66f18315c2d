package orchestrator

import (
	"context"

	"caseflow/internal/ingest"
	"caseflow/internal/staging"
)

// Ingester is implemented by ingest.Asset and ingest.DocumentAsset.
type Ingester interface {
	Run(ctx context.Context, unit ingest.WorkUnit, cfg ingest.SourceConfig) ingest.Result
}

// IngestUnit adapts an ingestion asset to a graph unit.
func IngestUnit(asset Ingester, cfg ingest.SourceConfig) Unit {
	return UnitFunc(func(ctx context.Context, req Request) Outcome {
		unit := ingest.WorkUnit{CaseNumber: req.CaseNumber, Label: req.Label, StagedRecords: stagedUpstream(req.Upstream)}
		result := asset.Run(ctx, unit, cfg)
		return Outcome{Status: string(result.Status), Error: result.Error, Detail: result}
	})
}

// stagedUpstream collects the records that upstream ingestion units staged
// in this run.
func stagedUpstream(deps []Outcome) map[staging.SourceType]string {
	var staged map[staging.SourceType]string
	for _, dep := range deps {
		result, ok := dep.Detail.(ingest.Result)
		if !ok || result.StagedRecordID == "" {
			continue
		}
		if staged == nil {
			staged = make(map[staging.SourceType]string)
		}
		staged[result.Source] = result.StagedRecordID
	}
	return staged
}
