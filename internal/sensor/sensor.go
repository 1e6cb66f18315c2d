package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"caseflow/internal/logging"
	"caseflow/internal/orchestrator"
	"caseflow/internal/services"
	"caseflow/internal/staging"
)

// CursorName is the sensor_cursors row owned by the new-case sensor.
const CursorName = "new_cases"

const pageSize = 200

// Status distinguishes an evaluation that submitted runs from a quiet one.
type Status string

const (
	StatusTriggered Status = "triggered"
	StatusNoOp      Status = "no_op"
)

// Source is the slice of the staging store the sensor needs.
type Source interface {
	RegisteredSince(ctx context.Context, after time.Time, limit int) ([]staging.WorkUnit, error)
	LoadCursor(ctx context.Context, name string) (time.Time, bool, error)
	SaveCursor(ctx context.Context, name string, value time.Time) error
}

// Submitter accepts run requests; orchestrator.Orchestrator implements it.
type Submitter interface {
	Submit(ctx context.Context, req orchestrator.Request) (orchestrator.Run, error)
}

// Trigger records one case found by an evaluation.
type Trigger struct {
	CaseNumber string `json:"case_number"`
	RunID      string `json:"run_id,omitempty"`
	// Deduplicated is set when a run for the case was already in flight.
	Deduplicated bool   `json:"deduplicated,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Result describes one evaluation.
type Result struct {
	Status     Status    `json:"status"`
	Triggers   []Trigger `json:"triggers,omitempty"`
	CursorFrom time.Time `json:"cursor_from"`
	CursorTo   time.Time `json:"cursor_to"`
}

// Submitted counts triggers that started a new run.
func (r Result) Submitted() int {
	n := 0
	for _, t := range r.Triggers {
		if t.RunID != "" && !t.Deduplicated && t.Error == "" {
			n++
		}
	}
	return n
}

// Options configures a Sensor.
type Options struct {
	Interval      time.Duration
	InitialCursor time.Time
	Logger        *slog.Logger
}

// Sensor evaluates new work units on a fixed interval.
type Sensor struct {
	source    Source
	submitter Submitter
	interval  time.Duration
	initial   time.Time
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	observer func(Result)
}

// New constructs a sensor.
func New(source Source, submitter Submitter, opts Options) *Sensor {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sensor{
		source:    source,
		submitter: submitter,
		interval:  interval,
		initial:   opts.InitialCursor.UTC(),
		logger:    logging.NewComponentLogger(opts.Logger, "sensor"),
		now:       time.Now,
	}
}

// SetObserver registers a callback invoked after every evaluation.
func (s *Sensor) SetObserver(fn func(Result)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Evaluate runs one sensor cycle. Submission failures are recorded on their
// trigger and do not stop the cycle; the cursor advances regardless.
func (s *Sensor) Evaluate(ctx context.Context) (Result, error) {
	evaluatedAt := s.now().UTC()
	cursor, ok, err := s.source.LoadCursor(ctx, CursorName)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		cursor = s.initial
	}
	result := Result{Status: StatusNoOp, CursorFrom: cursor}

	after := cursor
	for {
		units, err := s.source.RegisteredSince(ctx, after, pageSize)
		if err != nil {
			return Result{}, err
		}
		for _, unit := range units {
			if unit.CreatedAt.After(evaluatedAt) {
				continue
			}
			result.Triggers = append(result.Triggers, s.trigger(ctx, unit))
		}
		if len(units) < pageSize {
			break
		}
		after = units[len(units)-1].CreatedAt
	}
	if len(result.Triggers) > 0 {
		result.Status = StatusTriggered
	}

	next := evaluatedAt
	if !next.After(cursor) {
		next = cursor.Add(time.Nanosecond)
	}
	if err := s.source.SaveCursor(ctx, CursorName, next); err != nil {
		return result, err
	}
	result.CursorTo = next

	logger := s.logger
	if result.Status == StatusNoOp {
		logger.Debug("sensor evaluation found no new cases",
			logging.String("cursor", next.Format(time.RFC3339Nano)),
			logging.String(logging.FieldEventType, "sensor_no_op"),
		)
	} else {
		logger.Info("sensor evaluation triggered ingestion",
			logging.Int("cases", len(result.Triggers)),
			logging.Int("submitted", result.Submitted()),
			logging.String("cursor", next.Format(time.RFC3339Nano)),
			logging.String(logging.FieldEventType, "sensor_triggered"),
		)
	}

	s.mu.Lock()
	observer := s.observer
	s.mu.Unlock()
	if observer != nil {
		observer(result)
	}
	return result, nil
}

func (s *Sensor) trigger(ctx context.Context, unit staging.WorkUnit) Trigger {
	trigger := Trigger{CaseNumber: unit.CaseNumber}
	run, err := s.submitter.Submit(ctx, orchestrator.Request{
		Key:        orchestrator.CaseRunKey(unit.CaseNumber),
		Kind:       orchestrator.KindIngest,
		CaseNumber: unit.CaseNumber,
		Label:      unit.Label,
	})
	switch {
	case err == nil:
		trigger.RunID = run.ID
	case errors.Is(err, services.ErrDuplicateRun):
		trigger.RunID = run.ID
		trigger.Deduplicated = true
	default:
		trigger.Error = err.Error()
		logging.WarnWithContext(s.logger, "sensor could not trigger ingestion", "sensor_trigger_failed",
			logging.String(logging.FieldCaseID, unit.CaseNumber),
			logging.Error(err),
			logging.String(logging.FieldImpact, "case not ingested until triggered manually"),
			logging.String(logging.FieldErrorHint, fmt.Sprintf("run caseflow case ingest %s", unit.CaseNumber)),
		)
	}
	return trigger
}

// Run evaluates immediately and then once per interval until ctx ends.
func (s *Sensor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Evaluate(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "sensor evaluation failed", "sensor_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "new cases wait for the next evaluation"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
