package health

import (
	"time"

	"caseflow/internal/staging"
	"caseflow/internal/transform"
)

// Verdict is the overall health of a stage or report.
type Verdict string

const (
	Healthy  Verdict = "HEALTHY"
	Degraded Verdict = "DEGRADED"
	Unknown  Verdict = "UNKNOWN"
)

func (v Verdict) rank() int {
	switch v {
	case Degraded:
		return 2
	case Unknown:
		return 1
	default:
		return 0
	}
}

// Worst returns the more severe of two verdicts. DEGRADED outranks UNKNOWN,
// which outranks HEALTHY.
func Worst(a, b Verdict) Verdict {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Stage names one monitor stage.
type Stage string

const (
	StageStaging     Stage = "staging"
	StagePropagation Stage = "propagation"
	StageFunctional  Stage = "functional"
)

// Stages lists the stages in evaluation order.
var Stages = []Stage{StageStaging, StagePropagation, StageFunctional}

// ParseStage resolves a stage name.
func ParseStage(name string) (Stage, bool) {
	for _, stage := range Stages {
		if string(stage) == name {
			return stage, true
		}
	}
	return "", false
}

// Alert kinds.
const (
	AlertFailedRecords     = "failed_records"
	AlertPendingBacklog    = "pending_backlog"
	AlertLowScore          = "low_score"
	AlertPropagation       = "propagation_broken"
	AlertComputationFailed = "computation_failed"
	AlertStageError        = "stage_error"
)

// Alert is one finding. Subject is the source type, entity or computation
// the finding is about.
type Alert struct {
	Stage   Stage  `json:"stage"`
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SourceMetrics is one source type's staging snapshot.
type SourceMetrics struct {
	Source         staging.SourceType `json:"source"`
	Total          int64              `json:"total"`
	Processed      int64              `json:"processed"`
	Pending        int64              `json:"pending"`
	Failed         int64              `json:"failed"`
	Score          float64            `json:"score"`
	FirstIngestion *time.Time         `json:"first_ingestion,omitempty"`
	LastIngestion  *time.Time         `json:"last_ingestion,omitempty"`
}

// PropagationMetrics compares staged and derived counts for one binding.
type PropagationMetrics struct {
	Entity  string             `json:"entity"`
	Layer   transform.Layer    `json:"layer"`
	Source  staging.SourceType `json:"source"`
	Staged  int64              `json:"staged"`
	Derived int64              `json:"derived"`
}

// ComputationResult records one business computation invocation.
type ComputationResult struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	// Unresolved marks a failure caused by missing inputs in the sample case.
	Unresolved bool          `json:"unresolved,omitempty"`
	Error      string        `json:"error,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Value      any           `json:"value,omitempty"`
}

// StageResult is the output of one stage.
type StageResult struct {
	Stage        Stage                `json:"stage"`
	Verdict      Verdict              `json:"verdict"`
	Sources      []SourceMetrics      `json:"sources,omitempty"`
	Propagation  []PropagationMetrics `json:"propagation,omitempty"`
	Computations []ComputationResult  `json:"computations,omitempty"`
	SampleCase   string               `json:"sample_case,omitempty"`
	Alerts       []Alert              `json:"alerts,omitempty"`
	Error        string               `json:"error,omitempty"`
	CheckedAt    time.Time            `json:"checked_at"`
}

// Report aggregates the stages of one health evaluation.
type Report struct {
	RunID       string        `json:"run_id,omitempty"`
	Verdict     Verdict       `json:"verdict"`
	Stages      []StageResult `json:"stages"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// NewReport combines stage results. The verdict is the worst stage verdict.
func NewReport(runID string, stages []StageResult, generatedAt time.Time) Report {
	report := Report{RunID: runID, Verdict: Healthy, Stages: stages, GeneratedAt: generatedAt}
	for _, stage := range stages {
		report.Verdict = Worst(report.Verdict, stage.Verdict)
	}
	return report
}

// Alerts flattens the alerts of every stage.
func (r Report) Alerts() []Alert {
	var alerts []Alert
	for _, stage := range r.Stages {
		alerts = append(alerts, stage.Alerts...)
	}
	return alerts
}

// Stage returns the named stage result.
func (r Report) Stage(stage Stage) (StageResult, bool) {
	for _, result := range r.Stages {
		if result.Stage == stage {
			return result, true
		}
	}
	return StageResult{}, false
}
