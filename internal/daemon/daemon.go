package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"caseflow/internal/api"
	"caseflow/internal/blobstore"
	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/sensor"
	"caseflow/internal/services"
	"caseflow/internal/staging"
	"caseflow/internal/storage"
)

const (
	manualHealthKey = "health_manual"
	drainTimeout    = 30 * time.Second
	recordListLimit = 200
)

// Daemon coordinates the background loops and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	db     *storage.DB
	logger *slog.Logger
	c      *Components
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	loops   sync.WaitGroup

	sensorMu     sync.Mutex
	lastSensor   *sensor.Result
	lastSensorAt time.Time
}

// New constructs a daemon around already wired components.
func New(cfg *config.Config, db *storage.DB, logger *slog.Logger, c *Components) (*Daemon, error) {
	if cfg == nil || db == nil || c == nil {
		return nil, errors.New("daemon requires config, database, and components")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		db:       db,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		c:        c,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	c.Sensor.SetObserver(func(result sensor.Result) {
		d.sensorMu.Lock()
		d.lastSensor = &result
		d.lastSensorAt = time.Now().UTC()
		d.sensorMu.Unlock()
		c.Metrics.ObserveSensor(result)
	})
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Components exposes the wired services.
func (d *Daemon) Components() *Components { return d.c }

// Start acquires the daemon lock and launches the transformation worker, the
// sensor, the health schedule and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another caseflow daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.cfg.Transform.Enabled {
		if err := d.c.Worker.Start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start transform worker: %w", err)
		}
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.c.Worker.Stop()
		_ = d.lock.Unlock()
		return err
	}
	if d.cfg.Sensor.Enabled {
		d.loop(runCtx, d.c.Sensor.Run)
	}
	d.loop(runCtx, d.c.Schedule.Run)

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("caseflow daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("sensor", d.cfg.Sensor.Enabled),
		logging.Bool("transform", d.cfg.Transform.Enabled),
		logging.String("health_schedule", d.cfg.Health.Schedule),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) loop(ctx context.Context, fn func(context.Context)) {
	d.loops.Add(1)
	go func() {
		defer d.loops.Done()
		fn(ctx)
	}()
}

// Stop halts the loops, waits for in-flight runs, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.cancel()
	d.cancel = nil
	d.loops.Wait()
	d.c.Worker.Stop()
	d.api.stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := d.c.Orchestrator.Drain(drainCtx); err != nil {
		logging.WarnWithContext(d.logger, "runs still in flight at shutdown", "daemon_drain_timeout",
			logging.Int("active_runs", len(d.c.Orchestrator.Active())),
			logging.Error(err),
			logging.String(logging.FieldImpact, "those runs will be marked interrupted on next start"),
		)
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("caseflow daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the database.
func (d *Daemon) Close() error {
	d.Stop()
	return d.db.Close()
}

// Running reports whether Start succeeded and Stop has not run.
func (d *Daemon) Running() bool { return d.running.Load() }

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.databaseTarget(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.SocketPath(),
		APIBind:      d.api.address(),
		Worker:       api.WorkerStatus{Running: d.c.Worker.Running()},
		Sensor:       api.SensorStatus{Enabled: d.cfg.Sensor.Enabled},
		ActiveRuns:   api.FromRuns(d.c.Orchestrator.Active()),
	}
	if err := d.c.Worker.LastError(); err != nil {
		status.Worker.LastError = err.Error()
	}
	api.SortRuns(status.ActiveRuns)

	d.sensorMu.Lock()
	if d.lastSensor != nil {
		status.Sensor.LastStatus = string(d.lastSensor.Status)
		status.Sensor.LastTriggers = d.lastSensor.Submitted()
		status.Sensor.Cursor = d.lastSensor.CursorTo.UTC().Format(time.RFC3339Nano)
		status.Sensor.LastEvaluation = d.lastSensorAt.Format(time.RFC3339)
	}
	d.sensorMu.Unlock()

	if summaries, err := d.c.Staging.ProcessingSummary(ctx); err == nil {
		status.Staging = api.FromSourceSummaries(summaries)
	} else {
		d.logger.Warn("staging summary unavailable", logging.Error(err))
	}
	if report, ok := d.c.Tracker.Latest(); ok {
		dto := api.FromHealthReport(report)
		status.Health = &dto
	}
	return status
}

func (d *Daemon) databaseTarget() string {
	if strings.EqualFold(d.cfg.Storage.Driver, "postgres") {
		return "postgres"
	}
	return d.cfg.DatabasePath()
}

// TriggerIngestion starts ingestion of a case.
func (d *Daemon) TriggerIngestion(ctx context.Context, req api.TriggerRequest) (api.TriggerResult, error) {
	return d.c.API.TriggerIngestion(ctx, req)
}

// CaseStatus reports a case's per-layer progress.
func (d *Daemon) CaseStatus(ctx context.Context, caseNumber string) (api.CaseStatus, error) {
	return d.c.API.GetStatus(ctx, caseNumber)
}

// AddCase registers a case for the sensor's next evaluation.
func (d *Daemon) AddCase(ctx context.Context, caseNumber, label string) (api.CaseStatus, error) {
	caseNumber, err := api.ValidateCaseNumber(caseNumber)
	if err != nil {
		return api.CaseStatus{}, err
	}
	if _, err := d.c.Staging.RegisterWorkUnit(ctx, caseNumber, label); err != nil {
		return api.CaseStatus{}, err
	}
	return d.c.API.GetStatus(ctx, caseNumber)
}

// GetRun returns one run.
func (d *Daemon) GetRun(ctx context.Context, runID string) (api.RunView, error) {
	return d.c.API.GetRun(ctx, runID)
}

// ListRuns returns recent runs, newest first, optionally for one case.
func (d *Daemon) ListRuns(ctx context.Context, caseNumber string, limit int) ([]api.RunView, error) {
	runs, err := d.c.Orchestrator.Runs().List(ctx, caseNumber, limit)
	if err != nil {
		return nil, err
	}
	return api.FromRuns(runs), nil
}

// Health returns the latest health report.
func (d *Daemon) Health() (api.HealthReport, error) {
	report, ok := d.c.Tracker.Latest()
	if !ok {
		return api.HealthReport{}, services.Wrap(services.ErrNotFound, "daemon", "health", "no health check has completed yet", nil)
	}
	return api.FromHealthReport(report), nil
}

// RunHealth starts the health stages. With wait it blocks up to the sync
// timeout and returns the resulting report alongside the run.
func (d *Daemon) RunHealth(ctx context.Context, wait bool) (api.RunView, *api.HealthReport, error) {
	run, err := d.c.RunHealth(ctx, manualHealthKey)
	if err != nil && !errors.Is(err, services.ErrDuplicateRun) {
		return api.RunView{}, nil, err
	}
	if !wait {
		return api.FromRun(run), nil, nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, d.cfg.SyncTimeout())
	defer cancel()
	run, err = d.c.Orchestrator.Wait(waitCtx, run.ID)
	if err != nil {
		if errors.Is(err, services.ErrTimeout) {
			return api.FromRun(run), nil, nil
		}
		return api.RunView{}, nil, err
	}
	report, ok := d.c.Tracker.Latest()
	if !ok || report.RunID != run.ID {
		return api.FromRun(run), nil, nil
	}
	dto := api.FromHealthReport(report)
	return api.FromRun(run), &dto, nil
}

// Replay resets staged records to pending.
func (d *Daemon) Replay(ctx context.Context, req api.ReplayRequest) (api.ReplayResult, error) {
	result, err := d.c.Replay.Replay(ctx, api.ToReplayRequest(req))
	if err != nil {
		return api.ReplayResult{}, err
	}
	return api.FromReplayResult(result), nil
}

// StagingSummary aggregates staged records per source.
func (d *Daemon) StagingSummary(ctx context.Context) ([]api.SourceSummary, error) {
	summaries, err := d.c.Staging.ProcessingSummary(ctx)
	if err != nil {
		return nil, err
	}
	return api.FromSourceSummaries(summaries), nil
}

// ListRecords lists staged records of one source, either for a case or by status.
func (d *Daemon) ListRecords(ctx context.Context, source, caseNumber, status string) ([]api.StagedRecord, error) {
	sourceType, err := staging.ParseSourceType(source)
	if err != nil {
		return nil, err
	}
	var records []staging.Record
	switch {
	case strings.TrimSpace(caseNumber) != "":
		records, err = d.c.Staging.ListByWorkUnit(ctx, sourceType, caseNumber, recordListLimit)
	case strings.TrimSpace(status) != "":
		records, err = d.c.Staging.ListByStatus(ctx, sourceType, staging.Status(strings.ToLower(strings.TrimSpace(status))), recordListLimit)
	default:
		return nil, services.Wrap(services.ErrValidation, "daemon", "list records", "a case number or status is required", nil)
	}
	if err != nil {
		return nil, err
	}
	return api.FromRecords(records), nil
}

// UploadBlob stores an attachment through the dedup store.
func (d *Daemon) UploadBlob(ctx context.Context, req blobstore.UploadRequest) (api.BlobObject, error) {
	result, err := d.c.Blobs.Upload(ctx, req)
	if err != nil {
		return api.BlobObject{}, err
	}
	return api.FromUpload(result), nil
}

// DownloadBlob fetches an attachment by URL and stores it through the dedup store.
func (d *Daemon) DownloadBlob(ctx context.Context, rawURL, caseNumber string, category blobstore.Category, opts blobstore.DownloadOptions) (api.BlobObject, error) {
	timeout := time.Duration(d.cfg.Sources.Retry.DownloadTimeoutSec) * time.Second
	result, err := d.c.Blobs.DownloadFromURL(ctx, rawURL, caseNumber, category, timeout, opts)
	if err != nil {
		return api.BlobObject{}, err
	}
	return api.FromUpload(result), nil
}

// ReadBlob returns a blob's metadata and verified content.
func (d *Daemon) ReadBlob(ctx context.Context, id string) (api.BlobObject, []byte, error) {
	obj, err := d.c.Blobs.Get(ctx, id)
	if err != nil {
		return api.BlobObject{}, nil, err
	}
	data, err := d.c.Blobs.Read(ctx, id)
	if err != nil {
		return api.BlobObject{}, nil, err
	}
	return api.FromBlob(obj), data, nil
}

// BlobLink signs a temporary download URL for a blob.
func (d *Daemon) BlobLink(ctx context.Context, id string, ttl time.Duration) (api.BlobLink, error) {
	link, err := d.c.Blobs.SignedURL(ctx, id, ttl)
	if err != nil {
		return api.BlobLink{}, err
	}
	return api.BlobLink{ID: id, URL: link, ExpiresAt: time.Now().Add(ttl).UTC().Format(time.RFC3339)}, nil
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.c.Notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

