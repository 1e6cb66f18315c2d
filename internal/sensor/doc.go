// Package sensor turns newly registered work units into ingestion runs.
//
// Each evaluation reads the persisted cursor, lists cases registered after
// it and submits one run per case keyed by orchestrator.CaseRunKey, so a
// case whose run is still in flight is not triggered twice. The cursor then
// moves to the evaluation time whether or not anything was found; a quiet
// cycle yields an explicit no-op result. Only the sensor writes its cursor.
package sensor
