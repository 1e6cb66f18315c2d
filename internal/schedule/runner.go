package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Job is invoked once per activation with the scheduled time.
type Job func(ctx context.Context, scheduled time.Time)

// Runner fires a Job on every activation of an Expression until its context ends.
type Runner struct {
	expr   Expression
	job    Job
	logger *slog.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

// NewRunner binds job to expr. The package sits below logging in the import
// graph, so callers pass an already component-scoped logger.
func NewRunner(expr Expression, job Job, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		expr:   expr,
		job:    job,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}
}

// Run blocks until ctx is cancelled. Activations missed while a job is still
// running are skipped rather than queued.
func (r *Runner) Run(ctx context.Context) {
	for {
		now := r.now()
		next := r.expr.Next(now)
		if next.IsZero() {
			r.logger.Warn("cron expression never fires; scheduler idle",
				slog.String("schedule", r.expr.String()),
				slog.String("event_type", "schedule_idle"),
				slog.String("error_hint", "check health.schedule in config"),
			)
			<-ctx.Done()
			return
		}
		r.logger.Debug("next scheduled activation",
			slog.String("schedule", r.expr.String()),
			slog.String("next", next.Format(time.RFC3339)),
		)
		select {
		case <-ctx.Done():
			return
		case <-r.after(next.Sub(now)):
		}
		if ctx.Err() != nil {
			return
		}
		r.logger.Info("scheduled job firing",
			slog.String("schedule", r.expr.String()),
			slog.String("event_type", "schedule_fired"),
		)
		r.job(ctx, next)
	}
}
