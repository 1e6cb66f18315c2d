package services_test

import (
	"errors"
	"strings"
	"testing"

	"caseflow/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("connection refused")
	err := services.Wrap(services.ErrStorageUnavailable, "staging", "store", "insert staged record", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrStorageUnavailable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"staging", "store", "insert staged record", "connection refused"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransientSource) {
		t.Fatalf("expected transient default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err)
	}
}

func TestKindAndRetryable(t *testing.T) {
	cases := []struct {
		err       error
		kind      string
		retryable bool
	}{
		{services.Wrap(services.ErrTransientSource, "tiparser", "fetch", "503", nil), "transient_source", true},
		{services.Wrap(services.ErrTimeout, "tiparser", "fetch", "deadline", nil), "timeout", true},
		{services.Wrap(services.ErrAuthExpired, "casehelper", "login", "401", nil), "auth_expired", false},
		{services.Wrap(services.ErrStorageUnavailable, "staging", "store", "", nil), "storage_unavailable", false},
		{errors.New("plain"), "internal", false},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.kind {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.kind)
		}
		if got := services.Retryable(tc.err); got != tc.retryable {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
	if services.Kind(nil) != "" {
		t.Fatal("expected empty kind for nil")
	}
}
