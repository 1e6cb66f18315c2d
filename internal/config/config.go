package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	BlobDir  string `toml:"blob_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Storage selects the database backing staging, blobs, and runs.
type Storage struct {
	Driver      string `toml:"driver"`
	PostgresDSN string `toml:"postgres_dsn"`
	// BlobSigningKey signs temporary blob URLs. Generated per process when empty.
	BlobSigningKey string `toml:"blob_signing_key"`
	// MaxBlobMB caps the size of an attachment downloaded by URL.
	MaxBlobMB int `toml:"max_blob_mb"`
}

// TiParser holds connection settings for the transcript analysis API.
type TiParser struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// CaseHelper holds connection settings for the case management API.
type CaseHelper struct {
	URL            string `toml:"url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	AppType        string `toml:"app_type"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Retry bounds client-side retries against source APIs.
type Retry struct {
	Attempts           int `toml:"attempts"`
	BaseBackoffMillis  int `toml:"base_backoff_ms"`
	MaxBackoffMillis   int `toml:"max_backoff_ms"`
	DownloadTimeoutSec int `toml:"download_timeout_seconds"`
}

// Sources groups the external API clients.
type Sources struct {
	TiParser   TiParser   `toml:"tiparser"`
	CaseHelper CaseHelper `toml:"casehelper"`
	Retry      Retry      `toml:"retry"`
}

// Ingestion declares which sources are required. Sources absent from Required
// are optional: their fetch failures are recorded as skipped.
type Ingestion struct {
	Required         []string `toml:"required"`
	Documents        bool     `toml:"documents"`
	FetchTimeoutSecs int      `toml:"fetch_timeout_seconds"`
}

// Orchestrator contains graph execution settings.
type Orchestrator struct {
	GraphFile          string `toml:"graph_file"`
	MaxParallel        int    `toml:"max_parallel"`
	SyncTimeoutSeconds int    `toml:"sync_timeout_seconds"`
}

// Health contains HealthMonitor thresholds and its schedule.
type Health struct {
	Schedule         string  `toml:"schedule"`
	PendingThreshold int     `toml:"pending_threshold"`
	ScoreThreshold   float64 `toml:"score_threshold"`
}

// Sensor controls the new-case sensor loop.
type Sensor struct {
	Enabled         bool   `toml:"enabled"`
	IntervalSeconds int    `toml:"interval_seconds"`
	InitialCursor   string `toml:"initial_cursor"`
}

// Transform controls the in-process transformation worker.
type Transform struct {
	Enabled             bool `toml:"enabled"`
	PollIntervalSeconds int  `toml:"poll_interval_seconds"`
	ErrorRetrySeconds   int  `toml:"error_retry_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	HealthAlerts   bool   `toml:"health_alerts"`
	RunFailures    bool   `toml:"run_failures"`
}

// Metrics toggles the Prometheus endpoint on the API server.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for caseflow.
//
// Configuration sections by subsystem:
//   - Paths: data, log and blob directories plus the API bind address
//   - Storage: sqlite or postgres selection
//   - Sources: TiParser and CaseHelper API clients and their retry policy
//   - Ingestion: required vs optional sources
//   - Orchestrator: graph definition and parallelism
//   - Health: thresholds and cron schedule
//   - Sensor: new-case polling
//   - Transform: local transformation worker
//   - Notifications: ntfy push notification settings
//   - Metrics: Prometheus exposure
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Sources       Sources       `toml:"sources"`
	Ingestion     Ingestion     `toml:"ingestion"`
	Orchestrator  Orchestrator  `toml:"orchestrator"`
	Health        Health        `toml:"health"`
	Sensor        Sensor        `toml:"sensor"`
	Transform     Transform     `toml:"transform"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("caseflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.BlobDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database file location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "caseflow.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "caseflow.sock")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "caseflowd.lock")
}

// IsRequired reports whether ingestion failures for source should abort dependents.
func (c *Config) IsRequired(source string) bool {
	source = strings.ToLower(strings.TrimSpace(source))
	for _, name := range c.Ingestion.Required {
		if name == source {
			return true
		}
	}
	return false
}

// FetchTimeout returns the per-source fetch budget used by ingestion assets.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Ingestion.FetchTimeoutSecs) * time.Second
}

// SyncTimeout returns the default wait applied to synchronous triggers.
func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.Orchestrator.SyncTimeoutSeconds) * time.Second
}

// SensorInterval returns the delay between sensor evaluations.
func (c *Config) SensorInterval() time.Duration {
	return time.Duration(c.Sensor.IntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
