package logging

import (
	"context"
	"log/slog"

	"caseflow/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCaseID is the standardized key for work unit case numbers.
	FieldCaseID = "case_id"
	// FieldSourceType is the standardized key for staged record source types (at, wi, ...).
	FieldSourceType = "source_type"
	// FieldRunID is the standardized key for orchestrator run identifiers.
	FieldRunID = "run_id"
	// FieldUnit is the standardized key for graph unit names.
	FieldUnit = "unit"
	// FieldRecordID is the standardized key for staged record identifiers.
	FieldRecordID = "record_id"
	// FieldBlobID is the standardized key for blob object identifiers.
	FieldBlobID = "blob_id"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags log lines with a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := services.WorkUnitFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCaseID, id))
	}
	if run, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, run))
	}
	if unit, ok := services.UnitFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldUnit, unit))
	}
	if source, ok := services.SourceTypeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSourceType, source))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
