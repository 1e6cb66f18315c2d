package services

import "context"

type contextKey string

const (
	workUnitKey  contextKey = "case_id"
	runIDKey     contextKey = "run_id"
	unitKey      contextKey = "unit"
	sourceKey    contextKey = "source_type"
	requestIDKey contextKey = "request_id"
)

// WithWorkUnit annotates context with the case number being processed.
func WithWorkUnit(ctx context.Context, caseID string) context.Context {
	if caseID == "" {
		return ctx
	}
	return context.WithValue(ctx, workUnitKey, caseID)
}

// WorkUnitFromContext extracts the case number if present.
func WorkUnitFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(workUnitKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the orchestrator run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the orchestrator run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithUnit annotates context with the graph unit name (ingest_at, health_staging, ...).
func WithUnit(ctx context.Context, unit string) context.Context {
	if unit == "" {
		return ctx
	}
	return context.WithValue(ctx, unitKey, unit)
}

// UnitFromContext returns the graph unit name if present.
func UnitFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(unitKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSourceType annotates context with the staged record source type.
func WithSourceType(ctx context.Context, source string) context.Context {
	if source == "" {
		return ctx
	}
	return context.WithValue(ctx, sourceKey, source)
}

// SourceTypeFromContext returns the source type if present.
func SourceTypeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sourceKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
