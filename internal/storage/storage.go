package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"caseflow/internal/config"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

const operationTimeout = 15 * time.Second

// DB wraps *sql.DB with placeholder rebinding, busy retries, and error classification.
type DB struct {
	db      *sql.DB
	dialect Dialect
	target  string
}

// Open connects to the database selected by cfg.Storage and ensures the schema exists.
func Open(cfg *config.Config) (*DB, error) {
	switch cfg.Storage.Driver {
	case string(Postgres):
		return OpenPostgres(cfg.Storage.PostgresDSN)
	default:
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(cfg.DatabasePath())
	}
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(path string) (*DB, error) {
	query := url.Values{}
	query.Add("_pragma", "journal_mode(WAL)")
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", "busy_timeout(5000)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	return initialize(db, SQLite, path)
}

// OpenPostgres connects to Postgres using a lib/pq DSN.
func OpenPostgres(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return initialize(db, Postgres, "postgres")
}

func initialize(db *sql.DB, dialect Dialect, target string) (*DB, error) {
	store := &DB{db: db, dialect: dialect, target: target}
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an already-open handle without touching the schema. Tests use it
// with sqlmock; production code goes through Open.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect, target: string(dialect)}
}

// Dialect reports which SQL flavour the handle speaks.
func (d *DB) Dialect() Dialect { return d.dialect }

// Target describes the database location for status output (file path or "postgres").
func (d *DB) Target() string { return d.target }

// Ping verifies the backend is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ensureContext(ctx)); err != nil {
		return Classify("storage", "ping", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
