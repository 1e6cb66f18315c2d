package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"caseflow/internal/logging"
	"caseflow/internal/orchestrator"
	"caseflow/internal/services"
	"caseflow/internal/staging"
	"caseflow/internal/transform"
)

const maxCaseNumberLength = 64

// Cases is the slice of the staging store the trigger boundary needs.
type Cases interface {
	EnsureWorkUnit(ctx context.Context, caseNumber, label string, origin staging.Origin) (staging.WorkUnit, error)
	GetWorkUnit(ctx context.Context, caseNumber string) (staging.WorkUnit, error)
	CountsForWorkUnit(ctx context.Context, caseNumber string) (staging.UnitCounts, error)
}

// Runner starts and tracks orchestrator runs.
type Runner interface {
	Submit(ctx context.Context, req orchestrator.Request) (orchestrator.Run, error)
	RunSync(ctx context.Context, req orchestrator.Request, timeout time.Duration) (orchestrator.Run, error)
	Get(ctx context.Context, runID string) (orchestrator.Run, error)
}

// LayerCounter counts a case's derived records.
type LayerCounter interface {
	LayerCounts(ctx context.Context, caseNumber string) (transform.LayerCounts, error)
}

// RunHistory lists finished runs of a case, newest first.
type RunHistory interface {
	List(ctx context.Context, caseNumber string, limit int) ([]orchestrator.Run, error)
}

// Service implements the job-trigger boundary.
type Service struct {
	cases       Cases
	runner      Runner
	layers      LayerCounter
	history     RunHistory
	syncTimeout time.Duration
	logger      *slog.Logger
}

// Options tunes a Service. History may be nil.
type Options struct {
	History     RunHistory
	SyncTimeout time.Duration
	Logger      *slog.Logger
}

// NewService constructs the trigger boundary.
func NewService(cases Cases, runner Runner, layers LayerCounter, opts Options) *Service {
	timeout := opts.SyncTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Service{
		cases:       cases,
		runner:      runner,
		layers:      layers,
		history:     opts.History,
		syncTimeout: timeout,
		logger:      logging.NewComponentLogger(opts.Logger, "api"),
	}
}

// ParseMode validates a trigger mode. Empty means async.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeAsync:
		return ModeAsync, nil
	case ModeSync:
		return ModeSync, nil
	default:
		return "", services.Wrap(services.ErrValidation, "api", "parse mode", fmt.Sprintf("unknown mode %q (want async or sync)", value), nil)
	}
}

// ValidateCaseNumber trims and checks an external case number.
func ValidateCaseNumber(value string) (string, error) {
	caseNumber := strings.TrimSpace(value)
	if caseNumber == "" {
		return "", services.Wrap(services.ErrValidation, "api", "validate case", "case number is required", nil)
	}
	if len(caseNumber) > maxCaseNumberLength {
		return "", services.Wrap(services.ErrValidation, "api", "validate case", "case number is too long", nil)
	}
	if strings.IndexFunc(caseNumber, unicode.IsSpace) >= 0 {
		return "", services.Wrap(services.ErrValidation, "api", "validate case", fmt.Sprintf("case number %q contains whitespace", caseNumber), nil)
	}
	return caseNumber, nil
}

// TriggerIngestion starts ingestion of a case. Async returns as soon as the
// run is submitted. Sync waits up to the configured timeout and reports
// running when the wait expires; the run keeps going either way. A trigger
// for a case whose run is still in flight reports running with that run's id.
// Validation and storage problems are returned as errors; run outcomes never
// are.
func (s *Service) TriggerIngestion(ctx context.Context, req TriggerRequest) (TriggerResult, error) {
	caseNumber, err := ValidateCaseNumber(req.CaseNumber)
	if err != nil {
		return TriggerResult{}, err
	}
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return TriggerResult{}, err
	}

	unit, err := s.cases.EnsureWorkUnit(ctx, caseNumber, req.Label, staging.OriginTrigger)
	if err != nil {
		return TriggerResult{}, err
	}
	runReq := orchestrator.Request{
		Key:        orchestrator.CaseRunKey(caseNumber),
		Kind:       orchestrator.KindIngest,
		CaseNumber: caseNumber,
		Label:      unit.Label,
	}
	ctx = services.WithWorkUnit(ctx, caseNumber)
	logger := logging.WithContext(ctx, s.logger)

	var run orchestrator.Run
	if mode == ModeSync {
		run, err = s.runner.RunSync(ctx, runReq, s.syncTimeout)
	} else {
		run, err = s.runner.Submit(ctx, runReq)
	}
	result := TriggerResult{CaseNumber: caseNumber, RunID: run.ID}
	switch {
	case errors.Is(err, services.ErrDuplicateRun):
		result.Status = TriggerRunning
	case errors.Is(err, services.ErrTimeout):
		result.Status = TriggerRunning
	case err != nil:
		return TriggerResult{}, err
	case mode == ModeAsync:
		result.Status = TriggerTriggered
	case run.Status == orchestrator.RunCompleted:
		result.Status = TriggerCompleted
	default:
		result.Status = TriggerFailed
		result.Error = run.Error
	}
	logger.Info("ingestion triggered",
		logging.String("mode", string(mode)),
		logging.String("status", result.Status),
		logging.String(logging.FieldRunID, result.RunID),
		logging.String(logging.FieldEventType, "ingestion_triggered"),
	)
	return result, nil
}

// GetStatus reports a case's staged and derived counts and its overall
// status. An unknown case is not_started.
func (s *Service) GetStatus(ctx context.Context, caseNumber string) (CaseStatus, error) {
	caseNumber, err := ValidateCaseNumber(caseNumber)
	if err != nil {
		return CaseStatus{}, err
	}
	status := CaseStatus{CaseNumber: caseNumber, Status: CaseNotStarted}
	unit, err := s.cases.GetWorkUnit(ctx, caseNumber)
	if errors.Is(err, services.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return CaseStatus{}, err
	}
	status.Label = unit.Label

	counts, err := s.cases.CountsForWorkUnit(ctx, caseNumber)
	if err != nil {
		return CaseStatus{}, err
	}
	layers, err := s.layers.LayerCounts(ctx, caseNumber)
	if err != nil {
		return CaseStatus{}, err
	}
	status.Counts = LayerCounts{
		Staged:    counts.Total,
		Pending:   counts.Pending,
		Completed: counts.Completed,
		Failed:    counts.Failed,
		Silver:    layers.Silver,
		Gold:      layers.Gold,
	}
	status.Status = OverallStatus(status.Counts)

	if s.history != nil {
		runs, err := s.history.List(ctx, caseNumber, 1)
		if err != nil {
			logging.WarnWithContext(s.logger, "run history unavailable", "case_status_history_failed",
				logging.Error(err),
				logging.String(logging.FieldCaseID, caseNumber),
				logging.String(logging.FieldImpact, "case status returned without its last run"),
			)
		} else if len(runs) > 0 {
			last := FromRun(runs[0])
			status.LastRun = &last
		}
	}
	return status, nil
}

// OverallStatus derives a case's progress from its layer counts.
func OverallStatus(c LayerCounts) string {
	switch {
	case c.Staged == 0:
		return CaseNotStarted
	case c.Silver+c.Gold == 0:
		return CaseStagedOnly
	case c.Completed == c.Staged && c.Silver > 0 && c.Gold > 0:
		return CaseComplete
	default:
		return CasePartiallyPropagated
	}
}

// GetRun returns one run, in flight or finished.
func (s *Service) GetRun(ctx context.Context, runID string) (RunView, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return RunView{}, services.Wrap(services.ErrValidation, "api", "get run", "run id is required", nil)
	}
	run, err := s.runner.Get(ctx, runID)
	if err != nil {
		return RunView{}, err
	}
	return FromRun(run), nil
}
