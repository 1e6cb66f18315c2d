package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"caseflow/internal/api"
	"caseflow/internal/blobstore"
	"caseflow/internal/config"
	"caseflow/internal/health"
	"caseflow/internal/ingest"
	"caseflow/internal/logging"
	"caseflow/internal/metrics"
	"caseflow/internal/notifications"
	"caseflow/internal/orchestrator"
	"caseflow/internal/replay"
	"caseflow/internal/schedule"
	"caseflow/internal/schema"
	"caseflow/internal/sensor"
	"caseflow/internal/sources"
	"caseflow/internal/staging"
	"caseflow/internal/storage"
	"caseflow/internal/transform"
)

// Components is the wired set of pipeline services the daemon runs.
type Components struct {
	Staging      *staging.Store
	Blobs        *blobstore.Store
	Engine       *transform.LocalEngine
	Worker       *transform.Worker
	Orchestrator *orchestrator.Orchestrator
	Monitor      *health.Monitor
	Tracker      *health.Tracker
	Sensor       *sensor.Sensor
	Replay       *replay.Controller
	Metrics      *metrics.Collector
	Notifier     notifications.Service
	API          *api.Service
	Schedule     *schedule.Runner
}

// ComponentOptions overrides parts of the wiring. Zero values build
// everything from configuration.
type ComponentOptions struct {
	// Sources replaces the configured TiParser/CaseHelper clients.
	Sources *sources.Registry
	// Documents replaces the CaseHelper document listing.
	Documents ingest.DocumentSource
	Notifier  notifications.Service
}

// NewComponents wires storage, sources, ingestion, transformation, health,
// sensor, replay, metrics and notifications around one database handle.
func NewComponents(cfg *config.Config, db *storage.DB, logger *slog.Logger, opts ComponentOptions) (*Components, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("components require config and database")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	graph, err := orchestrator.LoadGraph(cfg.Orchestrator.GraphFile)
	if err != nil {
		return nil, err
	}
	expr, err := schedule.Parse(cfg.Health.Schedule)
	if err != nil {
		return nil, err
	}
	initialCursor, err := time.Parse(time.RFC3339, cfg.Sensor.InitialCursor)
	if err != nil {
		return nil, fmt.Errorf("parse sensor.initial_cursor: %w", err)
	}

	c := &Components{
		Staging:  staging.NewStore(db, logger),
		Metrics:  metrics.New(),
		Notifier: opts.Notifier,
	}
	if c.Notifier == nil {
		c.Notifier = notifications.NewService(cfg)
	}
	if c.Blobs, err = blobstore.NewFromConfig(cfg, db, logger); err != nil {
		return nil, err
	}

	registry := opts.Sources
	docs := opts.Documents
	if registry == nil {
		var casehelper *sources.CaseHelper
		registry, casehelper = sources.NewRegistryFromConfig(cfg, logger)
		if docs == nil && casehelper != nil {
			docs = casehelper
		}
	}

	c.Engine = transform.NewLocalEngine(db, c.Staging, schema.MustRegistry(), logger)
	c.Worker = transform.NewWorker(c.Engine, c.Staging,
		time.Duration(cfg.Transform.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.Transform.ErrorRetrySeconds)*time.Second,
		logger)
	c.Worker.SetObserver(c.Metrics.ObserveTransform)

	c.Monitor = health.NewMonitor(c.Staging, c.Engine, health.ThresholdsFromConfig(cfg.Health), logger)
	c.Tracker = health.NewTracker(logger, c.Metrics)
	if cfg.Notifications.HealthAlerts {
		c.Tracker.AddSink(c.Notifier)
	}

	units := bindUnits(cfg, graph, registry, docs, c, logger)
	c.Orchestrator = orchestrator.New(graph, units, orchestrator.NewRunStore(db), orchestrator.Options{
		MaxParallel: cfg.Orchestrator.MaxParallel,
		Logger:      logger,
	})
	c.Orchestrator.OnFinish(c.Tracker.Hook(graph))
	c.Orchestrator.OnFinish(c.Metrics.ObserveRun)
	c.Orchestrator.OnFinish(notifications.RunHook(c.Notifier, logger))

	c.Sensor = sensor.New(c.Staging, c.Orchestrator, sensor.Options{
		Interval:      cfg.SensorInterval(),
		InitialCursor: initialCursor,
		Logger:        logger,
	})
	c.Replay = replay.New(c.Staging, logger)
	c.Replay.SetObserver(c.Metrics.ObserveReplay)

	c.API = api.NewService(c.Staging, c.Orchestrator, c.Engine, api.Options{
		History:     c.Orchestrator.Runs(),
		SyncTimeout: cfg.SyncTimeout(),
		Logger:      logger,
	})
	c.Schedule = schedule.NewRunner(expr, c.scheduledHealth(logger), logging.NewComponentLogger(logger, "schedule"))
	return c, nil
}

// bindUnits maps every graph unit to its implementation. Ingest units whose
// source has no client stay unbound and report skipped.
func bindUnits(cfg *config.Config, graph orchestrator.Graph, registry *sources.Registry, docs ingest.DocumentSource, c *Components, logger *slog.Logger) map[string]orchestrator.Unit {
	units := make(map[string]orchestrator.Unit, len(graph.Units))
	for _, spec := range graph.Units {
		switch spec.Kind {
		case orchestrator.KindIngest:
			source, err := staging.ParseSourceType(spec.Source)
			if err != nil {
				continue
			}
			sourceCfg := ingest.SourceConfig{Required: cfg.IsRequired(string(source)), Timeout: cfg.FetchTimeout()}
			if source == ingest.SourceDocuments {
				if cfg.Ingestion.Documents && docs != nil {
					units[spec.Name] = orchestrator.IngestUnit(ingest.NewDocumentAsset(docs, c.Blobs, c.Staging, logger), sourceCfg)
				}
				continue
			}
			client, ok := registry.Client(source)
			if !ok {
				continue
			}
			units[spec.Name] = orchestrator.IngestUnit(ingest.NewAsset(source, client, c.Staging, logger), sourceCfg)
		case orchestrator.KindHealth:
			stage, ok := health.ParseStage(spec.Stage)
			if !ok {
				continue
			}
			units[spec.Name] = health.StageUnit(c.Monitor, stage)
		}
	}
	return units
}

func (c *Components) scheduledHealth(logger *slog.Logger) schedule.Job {
	logger = logging.NewComponentLogger(logger, "schedule")
	return func(ctx context.Context, scheduled time.Time) {
		if _, err := c.RunHealth(ctx, orchestrator.HealthRunKey(scheduled)); err != nil {
			logging.WarnWithContext(logger, "scheduled health check not started", "health_schedule_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "pipeline health not evaluated this period"),
			)
		}
	}
}

// RunHealth submits the three health stages as one run.
func (c *Components) RunHealth(ctx context.Context, key string) (orchestrator.Run, error) {
	return c.Orchestrator.Submit(ctx, orchestrator.Request{Key: key, Kind: orchestrator.KindHealth})
}
