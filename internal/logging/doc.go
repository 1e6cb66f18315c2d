// Package logging assembles structured slog loggers for the caseflow daemon
// and CLI.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so ingestion and health code can
// tag log lines with case numbers, run IDs, graph units, and correlation IDs.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
