// Package services defines shared utilities consumed by ingestion assets,
// source clients, and the orchestrator.
//
// Key responsibilities:
//   - Context helpers that stamp case numbers, run IDs, graph units, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (transient, auth, storage, optional skip) with errors.Is.
//
// Use these helpers when wiring new components so failure handling and
// observability stay uniform across the pipeline.
package services
