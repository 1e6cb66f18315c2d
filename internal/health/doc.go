// Package health verifies that staged data propagates through the
// transformation layers.
//
// Monitor runs three ordered stages. Staging scores each source type by the
// share of its staged records that finished processing. Propagation compares
// staged record counts against derived record counts per entity type.
// Functional picks one sample work unit and invokes every business
// computation the engine exposes. Each stage returns a StageResult with a
// verdict, metrics and alerts; findings are always data, never errors.
//
// StageUnit binds a stage to an orchestrator graph node so the scheduled
// health job runs the stages in dependency order. Tracker assembles the
// stage results of a finished health run into a Report, keeps the latest
// one, and fans it out to sinks such as push notifications and metrics.
package health
