package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"caseflow/internal/services"
	"caseflow/internal/storage"
)

// RunStore persists runs in the runs table.
type RunStore struct {
	db *storage.DB
}

// NewRunStore binds run persistence to db.
func NewRunStore(db *storage.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) insert(ctx context.Context, run Run) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO runs (id, run_key, kind, case_number, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Key, string(run.Kind), storage.NullableString(run.CaseNumber), string(run.Status), storage.FormatTime(run.StartedAt),
	)
	return storage.Classify("orchestrator", "insert run", err)
}

func (s *RunStore) finish(ctx context.Context, run Run) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE runs SET status = ?, error = ?, outcomes = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), storage.NullableString(run.Error), string(outcomes), storage.NullableTime(run.FinishedAt), run.ID,
	)
	return storage.Classify("orchestrator", "finish run", err)
}

const runColumns = "id, run_key, kind, case_number, status, error, outcomes, started_at, finished_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run        Run
		kind       string
		caseNumber sql.NullString
		status     string
		errText    sql.NullString
		outcomes   sql.NullString
		started    string
		finished   sql.NullString
	)
	if err := scanner.Scan(&run.ID, &run.Key, &kind, &caseNumber, &status, &errText, &outcomes, &started, &finished); err != nil {
		return Run{}, err
	}
	run.Kind = Kind(kind)
	run.CaseNumber = caseNumber.String
	run.Status = RunStatus(status)
	run.Error = errText.String
	run.StartedAt, _ = storage.ParseTime(started)
	if finished.Valid {
		if t, err := storage.ParseTime(finished.String); err == nil {
			run.FinishedAt = &t
		}
	}
	if outcomes.Valid && outcomes.String != "" {
		if err := json.Unmarshal([]byte(outcomes.String), &run.Outcomes); err != nil {
			return Run{}, services.Wrap(services.ErrValidation, "orchestrator", "decode run", run.ID, err)
		}
	}
	return run, nil
}

// Get loads a run by id.
func (s *RunStore) Get(ctx context.Context, id string) (Run, error) {
	rows, err := s.db.Query(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", strings.TrimSpace(id))
	if err != nil {
		return Run{}, storage.Classify("orchestrator", "get run", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Run{}, storage.Classify("orchestrator", "get run", err)
		}
		return Run{}, services.Wrap(services.ErrNotFound, "orchestrator", "get run", fmt.Sprintf("run %s", id), nil)
	}
	run, err := scanRun(rows)
	if err != nil {
		return Run{}, storage.Classify("orchestrator", "get run", err)
	}
	return run, nil
}

// List returns recent runs, newest first. An empty case number lists all.
func (s *RunStore) List(ctx context.Context, caseNumber string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id DESC LIMIT ?"
	args := []any{limit}
	if caseNumber = strings.TrimSpace(caseNumber); caseNumber != "" {
		query = "SELECT " + runColumns + " FROM runs WHERE case_number = ? ORDER BY started_at DESC, id DESC LIMIT ?"
		args = []any{caseNumber, limit}
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storage.Classify("orchestrator", "list runs", err)
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, storage.Classify("orchestrator", "list runs", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify("orchestrator", "list runs", err)
	}
	return runs, nil
}

// MarkInterrupted fails runs left running by a previous process.
func (s *RunStore) MarkInterrupted(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.Exec(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		string(RunFailed), "interrupted by daemon restart", storage.FormatTime(now), string(RunRunning),
	)
	if err != nil {
		return 0, storage.Classify("orchestrator", "mark interrupted", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
