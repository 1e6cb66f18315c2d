package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"caseflow/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TIPARSER_API_KEY", "tp-key")
	t.Setenv("CASEHELPER_USERNAME", "ops")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "caseflow")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Sources.TiParser.APIKey != "tp-key" {
		t.Fatalf("expected TiParser key from env, got %q", cfg.Sources.TiParser.APIKey)
	}
	if cfg.Sources.CaseHelper.Username != "ops" {
		t.Fatalf("expected CaseHelper username from env, got %q", cfg.Sources.CaseHelper.Username)
	}
	if cfg.Health.Schedule != "0 8 * * *" {
		t.Fatalf("unexpected default schedule %q", cfg.Health.Schedule)
	}
	if !cfg.IsRequired("at") || cfg.IsRequired("wi") || cfg.IsRequired("interview") {
		t.Fatalf("unexpected required sources %v", cfg.Ingestion.Required)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.BlobDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "caseflow.toml")

	type payload struct {
		Ingestion struct {
			Required []string `toml:"required"`
		} `toml:"ingestion"`
		Health struct {
			Schedule         string `toml:"schedule"`
			PendingThreshold int    `toml:"pending_threshold"`
		} `toml:"health"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Ingestion.Required = []string{" AT ", "Interview", "at"}
	custom.Health.Schedule = "*/15  *  * * *"
	custom.Health.PendingThreshold = 10
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if got := strings.Join(cfg.Ingestion.Required, ","); got != "at,interview" {
		t.Fatalf("unexpected required list %q", got)
	}
	if cfg.Health.Schedule != "*/15 * * * *" {
		t.Fatalf("expected schedule whitespace collapsed, got %q", cfg.Health.Schedule)
	}
	if cfg.Health.PendingThreshold != 10 {
		t.Fatalf("unexpected pending threshold %d", cfg.Health.PendingThreshold)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown driver", func(c *config.Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"postgres without dsn", func(c *config.Config) { c.Storage.Driver = "postgres" }, "postgres_dsn"},
		{"zero blob cap", func(c *config.Config) { c.Storage.MaxBlobMB = 0 }, "storage.max_blob_mb"},
		{"bad schedule", func(c *config.Config) { c.Health.Schedule = "every morning" }, "health.schedule"},
		{"score out of range", func(c *config.Config) { c.Health.ScoreThreshold = 120 }, "score_threshold"},
		{"unknown source", func(c *config.Config) { c.Ingestion.Required = []string{"fax"} }, "unknown source"},
		{"zero parallel", func(c *config.Config) { c.Orchestrator.MaxParallel = 0 }, "orchestrator.max_parallel"},
		{"bad cursor", func(c *config.Config) { c.Sensor.InitialCursor = "yesterday" }, "initial_cursor"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected driver %q", cfg.Storage.Driver)
	}
}
