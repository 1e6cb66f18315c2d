package orchestrator

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Outcome statuses produced by the orchestrator itself. Units report their
// own statuses (stored, skipped, healthy, degraded, ...).
const (
	OutcomeFailed  = "failed"
	OutcomeAborted = "aborted"
	OutcomeSkipped = "skipped"
)

// Outcome is one unit's result within a run.
type Outcome struct {
	Unit       string    `json:"unit"`
	Kind       Kind      `json:"kind"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Detail     any       `json:"detail,omitempty"`
}

// HardFailed reports whether the unit failed or never ran because a
// dependency failed.
func (o Outcome) HardFailed() bool {
	return o.Status == OutcomeFailed || o.Status == OutcomeAborted
}

// Request asks for one run of a subgraph.
type Request struct {
	// Key deduplicates runs: at most one run per key is in flight.
	Key        string
	Kind       Kind
	CaseNumber string
	Label      string
	// Units restricts the run to these units and their dependencies.
	Units []string
	// Upstream carries the outcomes of the running unit's dependencies.
	// The orchestrator sets it per unit.
	Upstream []Outcome
}

// Run is the record of one execution.
type Run struct {
	ID         string     `json:"id"`
	Key        string     `json:"key"`
	Kind       Kind       `json:"kind"`
	CaseNumber string     `json:"case_number,omitempty"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	Outcomes   []Outcome  `json:"outcomes"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Outcome returns the named unit's outcome, if it has finished.
func (r Run) Outcome(unit string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Unit == unit {
			return o, true
		}
	}
	return Outcome{}, false
}

// Unit is an executable graph node.
type Unit interface {
	Run(ctx context.Context, req Request) Outcome
}

// UnitFunc adapts a function to Unit.
type UnitFunc func(ctx context.Context, req Request) Outcome

// Run implements Unit.
func (f UnitFunc) Run(ctx context.Context, req Request) Outcome { return f(ctx, req) }

// CaseRunKey is the dedup key for ingestion of one case.
func CaseRunKey(caseNumber string) string {
	return "case_" + caseNumber
}

// HealthRunKey is the dedup key for the health job scheduled at t.
func HealthRunKey(t time.Time) string {
	return "health_check_" + t.UTC().Truncate(time.Minute).Format(time.RFC3339)
}
