package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"caseflow/internal/logging"
	"caseflow/internal/orchestrator"
)

// Sink receives every completed report.
type Sink interface {
	PublishHealth(ctx context.Context, report Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, report Report) error

// PublishHealth implements Sink.
func (f SinkFunc) PublishHealth(ctx context.Context, report Report) error { return f(ctx, report) }

// Tracker keeps the latest report in memory and fans reports out to sinks.
type Tracker struct {
	logger      *slog.Logger
	sinkTimeout time.Duration

	mu     sync.RWMutex
	latest *Report
	sinks  []Sink
}

// NewTracker constructs a tracker.
func NewTracker(logger *slog.Logger, sinks ...Sink) *Tracker {
	return &Tracker{
		logger:      logging.NewComponentLogger(logger, "health-tracker"),
		sinkTimeout: 30 * time.Second,
		sinks:       append([]Sink(nil), sinks...),
	}
}

// AddSink registers another sink.
func (t *Tracker) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	t.mu.Lock()
	t.sinks = append(t.sinks, sink)
	t.mu.Unlock()
}

// Latest returns the most recent report.
func (t *Tracker) Latest() (Report, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return Report{}, false
	}
	return *t.latest, true
}

// Record stores report as the latest and publishes it. Sink failures are
// logged and do not stop the remaining sinks.
func (t *Tracker) Record(ctx context.Context, report Report) {
	t.mu.Lock()
	t.latest = &report
	sinks := append([]Sink(nil), t.sinks...)
	t.mu.Unlock()

	attrs := []logging.Attr{
		logging.String(logging.FieldRunID, report.RunID),
		logging.String("verdict", string(report.Verdict)),
		logging.Int("alerts", len(report.Alerts())),
		logging.String(logging.FieldEventType, "health_verdict"),
	}
	if report.Verdict == Healthy {
		t.logger.Info("health report recorded", logging.Args(attrs...)...)
	} else {
		t.logger.Warn("health report recorded", logging.Args(attrs...)...)
	}

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, t.sinkTimeout)
		err := sink.PublishHealth(sinkCtx, report)
		cancel()
		if err != nil {
			logging.WarnWithContext(t.logger, "health report not published", "health_publish_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "operators may miss this report"),
			)
		}
	}
}

// Hook returns an orchestrator OnFinish callback that records the report of
// every finished health run.
func (t *Tracker) Hook(graph orchestrator.Graph) func(orchestrator.Run) {
	return func(run orchestrator.Run) {
		report, ok := ReportFromRun(run, graph)
		if !ok {
			return
		}
		t.Record(context.Background(), report)
	}
}
