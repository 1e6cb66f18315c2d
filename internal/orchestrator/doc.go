// Package orchestrator executes a declared graph of ingestion and health
// units for a run.
//
// A Graph lists units and their dependencies; it is validated for unknown
// references and cycles when loaded, whether from the built-in default or a
// YAML file. Each run executes the selected subgraph concurrently: a unit
// starts once every dependency has finished, bounded by a weighted
// semaphore. Monitors run even when ingestion failed; an ingestion unit whose
// ingestion dependency hard-failed is aborted instead.
//
// Runs carry a key. A second submission with the key of a run still in
// flight is rejected with services.ErrDuplicateRun and the in-flight run id.
// Runs are persisted to the runs table so a synchronous caller that timed
// out can still fetch the outcome later.
package orchestrator
