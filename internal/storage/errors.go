package storage

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	"caseflow/internal/services"
)

const (
	sqliteBusyCode       = 5
	sqliteConstraintCode = 19
	pgUniqueViolation    = "23505"
)

// ErrConflict marks a uniqueness violation. It is never a storage outage.
var ErrConflict = errors.New("unique constraint conflict")

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// IsUniqueViolation reports whether err is a unique or primary key conflict on either dialect.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteConstraintCode {
		return strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "PRIMARY KEY")
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Classify maps a driver error onto the service error taxonomy: missing rows
// become ErrNotFound, conflicts become ErrConflict, everything else is
// ErrStorageUnavailable.
func Classify(component, operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return services.Wrap(services.ErrNotFound, component, operation, "", err)
	case IsUniqueViolation(err):
		return services.Wrap(ErrConflict, component, operation, "", err)
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrStorageUnavailable):
		return err
	default:
		return services.Wrap(services.ErrStorageUnavailable, component, operation, "", err)
	}
}
