package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"caseflow/internal/health"
	"caseflow/internal/ingest"
	"caseflow/internal/orchestrator"
	"caseflow/internal/replay"
	"caseflow/internal/sensor"
	"caseflow/internal/staging"
)

const namespace = "caseflow"

// Collector records pipeline activity.
type Collector struct {
	registry *prometheus.Registry

	ingestResults   *prometheus.CounterVec
	ingestDuration  *prometheus.HistogramVec
	blobDuplicates  prometheus.Counter
	runs            *prometheus.CounterVec
	transformed     *prometheus.CounterVec
	transformTime   *prometheus.HistogramVec
	healthVerdict   *prometheus.GaugeVec
	healthScore     *prometheus.GaugeVec
	healthAlerts    *prometheus.CounterVec
	healthReports   prometheus.Counter
	sensorEvals     *prometheus.CounterVec
	sensorTriggers  *prometheus.CounterVec
	sensorCursor    prometheus.Gauge
	replayedRecords *prometheus.CounterVec
}

// New builds a collector with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ingestResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingest_results_total",
			Help: "Ingestion asset runs by source and outcome.",
		}, []string{"source", "status"}),
		ingestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ingest_duration_seconds",
			Help:    "Ingestion asset run duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"source"}),
		blobDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "blob_duplicates_total",
			Help: "Document uploads resolved to an existing blob.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Finished orchestrator runs by kind and status.",
		}, []string{"kind", "status"}),
		transformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transform_records_total",
			Help: "Staged records processed by the transformation worker.",
		}, []string{"source", "status"}),
		transformTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "transform_duration_seconds",
			Help:    "Time to derive one staged record.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"source"}),
		healthVerdict: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "health_verdict",
			Help: "Latest verdict per stage: 0 healthy, 1 unknown, 2 degraded.",
		}, []string{"stage"}),
		healthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "health_score",
			Help: "Latest staging health score per source.",
		}, []string{"source"}),
		healthAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "health_alerts_total",
			Help: "Health alerts raised by stage and kind.",
		}, []string{"stage", "kind"}),
		healthReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "health_reports_total",
			Help: "Health reports recorded.",
		}),
		sensorEvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sensor_evaluations_total",
			Help: "Sensor evaluations by result.",
		}, []string{"status"}),
		sensorTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sensor_triggers_total",
			Help: "Cases found by the sensor by trigger outcome.",
		}, []string{"outcome"}),
		sensorCursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sensor_cursor_timestamp_seconds",
			Help: "Current sensor cursor as a Unix timestamp.",
		}),
		replayedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "replayed_records_total",
			Help: "Staged records reset to pending by replay.",
		}, []string{"source"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.ingestResults, c.ingestDuration, c.blobDuplicates, c.runs,
		c.transformed, c.transformTime,
		c.healthVerdict, c.healthScore, c.healthAlerts, c.healthReports,
		c.sensorEvals, c.sensorTriggers, c.sensorCursor,
		c.replayedRecords,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRun records a finished run and the ingestion results it carries.
func (c *Collector) ObserveRun(run orchestrator.Run) {
	c.runs.WithLabelValues(string(run.Kind), string(run.Status)).Inc()
	for _, outcome := range run.Outcomes {
		result, ok := outcome.Detail.(ingest.Result)
		if !ok {
			if outcome.Kind == orchestrator.KindIngest && outcome.HardFailed() {
				c.ingestResults.WithLabelValues(unitSource(outcome.Unit), outcome.Status).Inc()
			}
			continue
		}
		c.ObserveIngest(result)
	}
}

func unitSource(unit string) string {
	return strings.TrimPrefix(unit, "ingest_")
}

// ObserveIngest records one asset result.
func (c *Collector) ObserveIngest(result ingest.Result) {
	source := string(result.Source)
	c.ingestResults.WithLabelValues(source, string(result.Status)).Inc()
	c.ingestDuration.WithLabelValues(source).Observe(result.Elapsed.Seconds())
	if result.Duplicates > 0 {
		c.blobDuplicates.Add(float64(result.Duplicates))
	}
}

// ObserveTransform matches transform.Observer.
func (c *Collector) ObserveTransform(source staging.SourceType, status staging.Status, elapsed time.Duration) {
	c.transformed.WithLabelValues(string(source), string(status)).Inc()
	c.transformTime.WithLabelValues(string(source)).Observe(elapsed.Seconds())
}

// PublishHealth implements health.Sink.
func (c *Collector) PublishHealth(_ context.Context, report health.Report) error {
	c.healthReports.Inc()
	for _, stage := range report.Stages {
		c.healthVerdict.WithLabelValues(string(stage.Stage)).Set(verdictValue(stage.Verdict))
		for _, source := range stage.Sources {
			c.healthScore.WithLabelValues(string(source.Source)).Set(source.Score)
		}
		for _, alert := range stage.Alerts {
			c.healthAlerts.WithLabelValues(string(alert.Stage), alert.Kind).Inc()
		}
	}
	return nil
}

func verdictValue(v health.Verdict) float64 {
	switch v {
	case health.Degraded:
		return 2
	case health.Unknown:
		return 1
	default:
		return 0
	}
}

// ObserveSensor records one sensor evaluation.
func (c *Collector) ObserveSensor(result sensor.Result) {
	c.sensorEvals.WithLabelValues(string(result.Status)).Inc()
	for _, trigger := range result.Triggers {
		outcome := "submitted"
		switch {
		case trigger.Error != "":
			outcome = "error"
		case trigger.Deduplicated:
			outcome = "deduplicated"
		}
		c.sensorTriggers.WithLabelValues(outcome).Inc()
	}
	if !result.CursorTo.IsZero() {
		c.sensorCursor.Set(float64(result.CursorTo.Unix()) + float64(result.CursorTo.Nanosecond())/1e9)
	}
}

// ObserveReplay records one replay request.
func (c *Collector) ObserveReplay(result replay.Result) {
	for source, n := range result.Affected {
		c.replayedRecords.WithLabelValues(string(source)).Add(float64(n))
	}
}
