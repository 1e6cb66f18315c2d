package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransientSource marks network or timeout failures talking to a source
	// API after the client exhausted its retries.
	ErrTransientSource = errors.New("transient source error")
	// ErrAuthExpired marks a source session that was rejected even after one
	// re-authentication.
	ErrAuthExpired = errors.New("source authentication expired")
	// ErrOptionalSourceUnavailable records a failed fetch for an optional source.
	ErrOptionalSourceUnavailable = errors.New("optional source unavailable")
	// ErrStorageUnavailable marks an unreachable staging or blob backend.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrNotFound           = errors.New("not found")
	ErrTimeout            = errors.New("timeout")
	// ErrDuplicateRun is returned when a run with the same key is already in flight.
	ErrDuplicateRun = errors.New("duplicate run")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransientSource
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps an error to a short stable label used in API responses, metric
// labels, and log hints.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrOptionalSourceUnavailable):
		return "optional_source_unavailable"
	case errors.Is(err, ErrTransientSource):
		return "transient_source"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrDuplicateRun):
		return "duplicate_run"
	default:
		return "internal"
	}
}

// Retryable reports whether a source call that failed with err may be retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientSource) || errors.Is(err, ErrTimeout)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
