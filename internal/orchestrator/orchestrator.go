package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"caseflow/internal/logging"
	"caseflow/internal/services"
)

// Options configures an Orchestrator.
type Options struct {
	// MaxParallel bounds concurrently running units across all runs.
	MaxParallel int
	Logger      *slog.Logger
}

// Orchestrator executes graph runs and tracks those in flight.
type Orchestrator struct {
	graph  Graph
	units  map[string]Unit
	runs   *RunStore
	sem    *semaphore.Weighted
	logger *slog.Logger
	now    func() time.Time

	hookMu sync.RWMutex
	hooks  []func(Run)

	mu       sync.Mutex
	inflight map[string]*execution
	byID     map[string]*execution
	wg       sync.WaitGroup
}

type execution struct {
	mu   sync.Mutex
	run  Run
	done chan struct{}
}

func (e *execution) snapshot() Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	run := e.run
	run.Outcomes = append([]Outcome(nil), e.run.Outcomes...)
	return run
}

// New builds an orchestrator over a validated graph. units binds graph unit
// names to implementations; unbound units report skipped when selected.
func New(graph Graph, units map[string]Unit, runs *RunStore, opts Options) *Orchestrator {
	parallel := opts.MaxParallel
	if parallel <= 0 {
		parallel = 4
	}
	bound := make(map[string]Unit, len(units))
	for name, unit := range units {
		bound[name] = unit
	}
	return &Orchestrator{
		graph:    graph,
		units:    bound,
		runs:     runs,
		sem:      semaphore.NewWeighted(int64(parallel)),
		logger:   logging.NewComponentLogger(opts.Logger, "orchestrator"),
		now:      time.Now,
		inflight: make(map[string]*execution),
		byID:     make(map[string]*execution),
	}
}

// Graph returns the graph being executed.
func (o *Orchestrator) Graph() Graph { return o.graph }

// Runs exposes run persistence for listing.
func (o *Orchestrator) Runs() *RunStore { return o.runs }

// OnFinish registers fn to be called with every finished run.
func (o *Orchestrator) OnFinish(fn func(Run)) {
	o.hookMu.Lock()
	o.hooks = append(o.hooks, fn)
	o.hookMu.Unlock()
}

// InFlight returns the id of the running run with key, if any.
func (o *Orchestrator) InFlight(key string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if exec, ok := o.inflight[key]; ok {
		return exec.run.ID, true
	}
	return "", false
}

// Submit starts a run and returns immediately with its running record. The
// run keeps executing after ctx is cancelled. When a run with the same key is
// in flight, that run is returned with an ErrDuplicateRun error.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Run, error) {
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		return Run{}, services.Wrap(services.ErrValidation, "orchestrator", "submit", "run key is required", nil)
	}
	specs, err := o.graph.Select(req.Kind, req.Units...)
	if err != nil {
		return Run{}, err
	}
	if len(specs) == 0 {
		return Run{}, services.Wrap(services.ErrValidation, "orchestrator", "submit", fmt.Sprintf("no %s units in graph", req.Kind), nil)
	}

	o.mu.Lock()
	if existing, ok := o.inflight[req.Key]; ok {
		o.mu.Unlock()
		run := existing.snapshot()
		o.logger.Info("duplicate run request dropped",
			logging.String("run_key", req.Key),
			logging.String(logging.FieldRunID, run.ID),
			logging.String(logging.FieldEventType, "run_deduplicated"),
		)
		return run, services.Wrap(services.ErrDuplicateRun, "orchestrator", "submit", fmt.Sprintf("run %s already in flight for %s", run.ID, req.Key), nil)
	}
	exec := &execution{
		run: Run{
			ID:         uuid.NewString(),
			Key:        req.Key,
			Kind:       req.Kind,
			CaseNumber: req.CaseNumber,
			Status:     RunRunning,
			StartedAt:  o.now().UTC(),
		},
		done: make(chan struct{}),
	}
	o.inflight[req.Key] = exec
	o.byID[exec.run.ID] = exec
	o.wg.Add(1)
	o.mu.Unlock()

	if err := o.runs.insert(ctx, exec.run); err != nil {
		o.release(exec)
		o.wg.Done()
		return Run{}, err
	}
	o.logger.Info("run started",
		logging.String(logging.FieldRunID, exec.run.ID),
		logging.String("run_key", req.Key),
		logging.String(logging.FieldCaseID, req.CaseNumber),
		logging.Int("units", len(specs)),
		logging.String(logging.FieldEventType, "run_started"),
	)
	runCtx := services.WithRunID(services.WithWorkUnit(context.WithoutCancel(ctx), req.CaseNumber), exec.run.ID)
	go o.execute(runCtx, exec, req, specs)
	return exec.snapshot(), nil
}

// RunSync submits a run and waits up to timeout for it. On timeout the
// running snapshot is returned with an ErrTimeout error; the run continues.
func (o *Orchestrator) RunSync(ctx context.Context, req Request, timeout time.Duration) (Run, error) {
	run, err := o.Submit(ctx, req)
	if err != nil {
		return run, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return o.Wait(ctx, run.ID)
}

// Wait blocks until the run finishes or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, runID string) (Run, error) {
	o.mu.Lock()
	exec, ok := o.byID[runID]
	o.mu.Unlock()
	if !ok {
		return o.runs.Get(ctx, runID)
	}
	select {
	case <-exec.done:
		return exec.snapshot(), nil
	case <-ctx.Done():
		return exec.snapshot(), services.Wrap(services.ErrTimeout, "orchestrator", "wait", fmt.Sprintf("run %s still running", runID), ctx.Err())
	}
}

// Get returns a run, in flight or finished.
func (o *Orchestrator) Get(ctx context.Context, runID string) (Run, error) {
	o.mu.Lock()
	exec, ok := o.byID[runID]
	o.mu.Unlock()
	if ok {
		return exec.snapshot(), nil
	}
	return o.runs.Get(ctx, runID)
}

// Active lists runs currently in flight.
func (o *Orchestrator) Active() []Run {
	o.mu.Lock()
	execs := make([]*execution, 0, len(o.inflight))
	for _, exec := range o.inflight {
		execs = append(execs, exec)
	}
	o.mu.Unlock()
	out := make([]Run, 0, len(execs))
	for _, exec := range execs {
		out = append(out, exec.snapshot())
	}
	return out
}

// Drain waits for in-flight runs to finish or ctx to end.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release(exec *execution) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[exec.run.Key] == exec {
		delete(o.inflight, exec.run.Key)
	}
	delete(o.byID, exec.run.ID)
}

func (o *Orchestrator) execute(ctx context.Context, exec *execution, req Request, specs []UnitSpec) {
	defer o.wg.Done()

	done := make(map[string]chan struct{}, len(specs))
	for _, spec := range specs {
		done[spec.Name] = make(chan struct{})
	}
	var (
		resultsMu sync.Mutex
		results   = make(map[string]Outcome, len(specs))
		units     sync.WaitGroup
	)
	for _, spec := range specs {
		units.Add(1)
		go func(spec UnitSpec) {
			defer units.Done()
			defer close(done[spec.Name])
			var deps []Outcome
			for _, dep := range spec.DependsOn {
				<-done[dep]
				resultsMu.Lock()
				deps = append(deps, results[dep])
				resultsMu.Unlock()
			}
			outcome := o.runUnit(ctx, spec, req, deps)
			resultsMu.Lock()
			results[spec.Name] = outcome
			resultsMu.Unlock()
			exec.mu.Lock()
			exec.run.Outcomes = append(exec.run.Outcomes, outcome)
			exec.mu.Unlock()
		}(spec)
	}
	units.Wait()

	var failures []string
	ordered := make([]Outcome, 0, len(specs))
	for _, spec := range specs {
		outcome := results[spec.Name]
		ordered = append(ordered, outcome)
		if outcome.HardFailed() {
			failures = append(failures, fmt.Sprintf("%s: %s", spec.Name, outcome.Error))
		}
	}
	finished := o.now().UTC()
	exec.mu.Lock()
	exec.run.Outcomes = ordered
	exec.run.FinishedAt = &finished
	exec.run.Status = RunCompleted
	if len(failures) > 0 {
		exec.run.Status = RunFailed
		exec.run.Error = strings.Join(failures, "; ")
	}
	exec.mu.Unlock()
	run := exec.snapshot()

	if err := o.runs.finish(ctx, run); err != nil {
		logging.WarnWithContext(o.logger, "run outcome not persisted", "run_persist_failed",
			logging.String(logging.FieldRunID, run.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run result only available until restart"),
		)
	}
	logger := logging.WithContext(ctx, o.logger)
	if run.Status == RunFailed {
		logging.WarnWithContext(logger, "run finished with failures", "run_failed",
			logging.String("run_key", run.Key),
			logging.String("failures", run.Error),
			logging.Duration("elapsed", finished.Sub(run.StartedAt)),
			logging.String(logging.FieldErrorHint, "inspect unit outcomes with caseflow run show"),
		)
	} else {
		logger.Info("run completed",
			logging.String("run_key", run.Key),
			logging.Duration("elapsed", finished.Sub(run.StartedAt)),
			logging.String(logging.FieldEventType, "run_completed"),
		)
	}

	o.hookMu.RLock()
	hooks := append([]func(Run){}, o.hooks...)
	o.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(run)
	}

	o.mu.Lock()
	if o.inflight[run.Key] == exec {
		delete(o.inflight, run.Key)
	}
	o.mu.Unlock()
	close(exec.done)
	o.mu.Lock()
	delete(o.byID, run.ID)
	o.mu.Unlock()
}

func (o *Orchestrator) runUnit(ctx context.Context, spec UnitSpec, req Request, deps []Outcome) (outcome Outcome) {
	ctx = services.WithUnit(ctx, spec.Name)
	logger := logging.WithContext(ctx, o.logger)
	started := o.now().UTC()
	defer func() {
		outcome.Unit = spec.Name
		outcome.Kind = spec.Kind
		outcome.StartedAt = started
		outcome.FinishedAt = o.now().UTC()
	}()

	if spec.Kind == KindIngest {
		for _, dep := range deps {
			if dep.Kind == KindIngest && dep.HardFailed() {
				logging.WarnWithContext(logger, "unit aborted", "unit_aborted",
					logging.String("dependency", dep.Unit),
					logging.String(logging.FieldImpact, "unit did not run"),
				)
				return Outcome{Status: OutcomeAborted, Error: fmt.Sprintf("dependency %s %s", dep.Unit, dep.Status)}
			}
		}
	}
	unit, ok := o.units[spec.Name]
	if !ok {
		return Outcome{Status: OutcomeSkipped, Error: "unit not enabled"}
	}
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return Outcome{Status: OutcomeFailed, Error: err.Error()}
	}
	defer o.sem.Release(1)

	req.Upstream = deps
	logger.Debug("unit started", logging.String(logging.FieldEventType, "unit_started"))
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{Status: OutcomeFailed, Error: fmt.Sprintf("panic: %v", r)}
			logging.ErrorWithContext(logger, "unit panicked", "unit_panic", logging.Any("panic", r))
		}
	}()
	outcome = unit.Run(ctx, req)
	logger.Info("unit finished",
		logging.String("status", outcome.Status),
		logging.String(logging.FieldEventType, "unit_finished"),
	)
	return outcome
}
