package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"caseflow/internal/config"
	"caseflow/internal/staging"
	"caseflow/internal/storage"
)

// MustOpenDB opens the configured database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// MustOpenStaging opens a fresh SQLite-backed staging store.
func MustOpenStaging(t testing.TB) (*staging.Store, *storage.DB) {
	t.Helper()

	db := MustOpenDB(t, NewConfig(t))
	return staging.NewStore(db, nil), db
}

// StageRecord stores a payload and returns its id, failing the test on error.
func StageRecord(t testing.TB, store *staging.Store, caseNumber string, source staging.SourceType, payload string) string {
	t.Helper()

	id, err := store.Store(context.Background(), caseNumber, source, json.RawMessage(payload), staging.Provenance{APISource: "test"})
	if err != nil {
		t.Fatalf("stage %s record for %s: %v", source, caseNumber, err)
	}
	return id
}
