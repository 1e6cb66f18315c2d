package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// Rebind converts "?" placeholders to the dialect's form. Question marks inside
// single-quoted literals are left alone.
func (d *DB) Rebind(query string) string {
	return rebind(d.dialect, query)
}

func rebind(dialect Dialect, query string) string {
	if dialect != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (d *DB) retryOnBusy(ctx context.Context, op func() error) error {
	if d.dialect != SQLite {
		return op()
	}
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Exec runs a statement with busy retries. Errors are returned raw; callers
// pass them through Classify with their own component and operation names.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	query = d.Rebind(query)
	var (
		res     sql.Result
		execErr error
	)
	if err := d.retryOnBusy(ctx, func() error {
		res, execErr = d.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Query runs a row-returning statement with busy retries.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx = ensureContext(ctx)
	query = d.Rebind(query)
	var rows *sql.Rows
	err := d.retryOnBusy(ctx, func() error {
		var queryErr error
		rows, queryErr = d.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

// QueryRow runs a single-row query. Busy errors surface from Scan and are
// retried by ScanRow instead.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ensureContext(ctx), d.Rebind(query), args...)
}

// ScanRow runs a single-row query and scans it, retrying SQLite busy errors.
func (d *DB) ScanRow(ctx context.Context, query string, args []any, dest ...any) error {
	ctx = ensureContext(ctx)
	query = d.Rebind(query)
	return d.retryOnBusy(ctx, func() error {
		return d.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	})
}

// Tx is a transaction speaking the same placeholder dialect as its DB.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, rebind(t.dialect, query), args...)
}

// QueryRow runs a single-row query inside the transaction.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, rebind(t.dialect, query), args...)
}

// Query runs a row-returning statement inside the transaction.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, rebind(t.dialect, query), args...)
}

// WithTx runs fn in a transaction, committing when it returns nil. The whole
// transaction is retried when SQLite reports the database busy.
func (d *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	ctx = ensureContext(ctx)
	return d.retryOnBusy(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(&Tx{tx: tx, dialect: d.dialect}); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			if !errors.Is(err, sql.ErrTxDone) {
				_ = tx.Rollback()
			}
			return err
		}
		return nil
	})
}
