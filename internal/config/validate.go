package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"caseflow/internal/schedule"
)

// KnownSources lists the ingestion sources the default graph wires.
var KnownSources = []string{"at", "wi", "trt", "interview", "documents"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateIngestion(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateHealth(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case "sqlite":
		return nil
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn must be set when storage.driver is postgres (or set CASEFLOW_POSTGRES_DSN)")
		}
		return nil
	default:
		return fmt.Errorf("storage.driver: unsupported value %q (want sqlite or postgres)", c.Storage.Driver)
	}
}

func (c *Config) validateSources() error {
	if c.IsRequired("at") || c.IsRequired("wi") || c.IsRequired("trt") {
		if c.Sources.TiParser.URL == "" {
			return errors.New("sources.tiparser.url must be set when a transcript source is required")
		}
	}
	if c.IsRequired("interview") || c.IsRequired("documents") {
		if c.Sources.CaseHelper.URL == "" {
			return errors.New("sources.casehelper.url must be set when interview or documents is required")
		}
	}
	if c.Sources.Retry.BaseBackoffMillis < 0 {
		return errors.New("sources.retry.base_backoff_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateIngestion() error {
	for _, name := range c.Ingestion.Required {
		known := false
		for _, candidate := range KnownSources {
			if candidate == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("ingestion.required: unknown source %q (want one of %s)", name, strings.Join(KnownSources, ", "))
		}
	}
	return nil
}

func (c *Config) validateTimings() error {
	if err := ensurePositiveMap(map[string]int{
		"sources.tiparser.timeout_seconds":       c.Sources.TiParser.TimeoutSeconds,
		"sources.casehelper.timeout_seconds":     c.Sources.CaseHelper.TimeoutSeconds,
		"sources.retry.download_timeout_seconds": c.Sources.Retry.DownloadTimeoutSec,
		"storage.max_blob_mb":                    c.Storage.MaxBlobMB,
		"ingestion.fetch_timeout_seconds":        c.Ingestion.FetchTimeoutSecs,
		"orchestrator.max_parallel":              c.Orchestrator.MaxParallel,
		"orchestrator.sync_timeout_seconds":      c.Orchestrator.SyncTimeoutSeconds,
		"sensor.interval_seconds":                c.Sensor.IntervalSeconds,
		"transform.poll_interval_seconds":        c.Transform.PollIntervalSeconds,
		"transform.error_retry_seconds":          c.Transform.ErrorRetrySeconds,
		"notifications.request_timeout":          c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if _, err := time.Parse(time.RFC3339, c.Sensor.InitialCursor); err != nil {
		return fmt.Errorf("sensor.initial_cursor must be RFC3339: %w", err)
	}
	return nil
}

func (c *Config) validateHealth() error {
	if _, err := schedule.Parse(c.Health.Schedule); err != nil {
		return fmt.Errorf("health.schedule: %w", err)
	}
	if c.Health.PendingThreshold < 0 {
		return errors.New("health.pending_threshold must be >= 0")
	}
	if c.Health.ScoreThreshold < 0 || c.Health.ScoreThreshold > 100 {
		return errors.New("health.score_threshold must be between 0 and 100")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
