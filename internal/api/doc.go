// Package api is the job-trigger boundary shared by the IPC and HTTP layers.
// It starts ingestion runs for a case, reports a case's per-layer progress,
// and translates internal run, staging and health models into
// transport-friendly DTOs that the CLI and other consumers can render without
// coupling to internal types.
//
// # Key Types
//
// Service: TriggerIngestion (async or sync) and GetStatus over the staging
// store, the orchestrator and the transformation engine.
//
// TriggerResult: triggered, running, completed or failed plus the run id and,
// on failure, a human-readable error.
//
// CaseStatus: staged and derived counts for one case with its overall status
// (not_started, staged_only, partially_propagated, complete).
//
// RunView, HealthReport, SourceSummary, ReplayResult, DaemonStatus: read-only
// views of the daemon's state.
//
// # Converters
//
// FromRun: orchestrator.Run -> RunView with per-unit durations and ingest
// details flattened.
//
// FromHealthReport: health.Report -> HealthReport with stages in check order.
//
// FromSourceSummaries: staging summaries -> SourceSummary with health score.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums are exposed as lowercase
// strings. Timestamps use RFC3339 with milliseconds.
package api
