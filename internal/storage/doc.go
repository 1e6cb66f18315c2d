// Package storage owns the database handle shared by staging, blob metadata,
// derived records, the run registry, and the sensor cursor.
//
// Two dialects are supported: SQLite through modernc.org/sqlite (the default,
// a single file under the data directory) and Postgres through lib/pq. Queries
// are written once with "?" placeholders and rebound for Postgres. SQLite
// busy errors are retried with a short backoff, and every driver failure other
// than a missing row or a uniqueness conflict is reported as
// services.ErrStorageUnavailable so callers can treat it as fatal.
package storage
