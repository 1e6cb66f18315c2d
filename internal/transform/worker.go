package transform

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"caseflow/internal/logging"
	"caseflow/internal/staging"
)

const workerBatch = 25

// Observer is notified of every processed record.
type Observer func(source staging.SourceType, status staging.Status, elapsed time.Duration)

// Worker drains pending staged records through a LocalEngine.
type Worker struct {
	engine       *LocalEngine
	store        *staging.Store
	logger       *slog.Logger
	pollInterval time.Duration
	errorRetry   time.Duration
	observe      Observer

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewWorker constructs a worker. Non-positive intervals fall back to 5s and 10s.
func NewWorker(engine *LocalEngine, store *staging.Store, pollInterval, errorRetry time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if errorRetry <= 0 {
		errorRetry = 10 * time.Second
	}
	return &Worker{
		engine:       engine,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "transform-worker"),
		pollInterval: pollInterval,
		errorRetry:   errorRetry,
	}
}

// SetObserver installs a per-record callback. Call before Start.
func (w *Worker) SetObserver(fn Observer) {
	w.observe = fn
}

// Start begins background processing.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("transform worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go w.loop(runCtx)
	return nil
}

// Stop terminates background processing and waits for the current batch.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

// Running reports whether the loop is active.
func (w *Worker) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// LastError returns the most recent batch failure, if any.
func (w *Worker) LastError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastErr
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := w.RunOnce(ctx)
		wait := w.pollInterval
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			w.logger.Error("transform batch failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "transform_batch_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
			wait = w.errorRetry
		case n > 0:
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// RunOnce processes one batch of pending records and returns how many were handled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	records, err := w.store.NextPending(ctx, workerBatch)
	if err != nil {
		w.setLastError(err)
		return 0, err
	}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		started := time.Now()
		status, err := w.engine.Process(ctx, rec)
		if err != nil {
			w.setLastError(err)
			return i, err
		}
		if w.observe != nil {
			w.observe(rec.SourceType, status, time.Since(started))
		}
	}
	w.setLastError(nil)
	return len(records), nil
}

// Drain processes batches until nothing is pending.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.RunOnce(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
	}
}

func (w *Worker) setLastError(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}
