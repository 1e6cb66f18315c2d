package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// SchemaVersion is bumped whenever either schema file changes shape.
const SchemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (d *DB) initSchema(ctx context.Context) error {
	existsQuery := "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'"
	if d.dialect == Postgres {
		existsQuery = "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'schema_version'"
	}
	var tableExists int
	if err := d.ScanRow(ctx, existsQuery, nil, &tableExists); err != nil {
		return Classify("storage", "check schema", err)
	}
	if tableExists == 0 {
		return d.createSchema(ctx)
	}

	var version int
	if err := d.ScanRow(ctx, "SELECT version FROM schema_version LIMIT 1", nil, &version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (migrate or recreate the database)",
			ErrSchemaMismatch, version, SchemaVersion)
	}
	return nil
}

func (d *DB) createSchema(ctx context.Context) error {
	ddl := sqliteSchema
	if d.dialect == Postgres {
		ddl = postgresSchema
	}
	return d.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES (?)", SchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}
