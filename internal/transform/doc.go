// Package transform derives the silver and gold layers from staged records.
//
// Engine is the boundary the orchestration core depends on: it answers
// propagation counts per derived entity type and exposes named business
// computations scoped to a work unit. LocalEngine is the in-process
// implementation backed by the derived_records table, and Worker drains
// pending staged records through it on a poll interval, marking each record
// completed or failed.
//
// Derivation reads payloads through internal/schema. A payload matching no
// declared version fails its staged record; a field that cannot be resolved
// is listed under "unresolved" in the derived payload and never stored as zero.
package transform
