package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeSources()
	c.normalizeIngestion()
	if err := c.normalizeOrchestrator(); err != nil {
		return err
	}
	c.normalizeHealth()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BlobDir) == "" {
		c.Paths.BlobDir = defaultBlobDir
	}
	if c.Paths.BlobDir, err = expandPath(c.Paths.BlobDir); err != nil {
		return fmt.Errorf("paths.blob_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = envValue("CASEFLOW_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaultStorageDriver
	}
	c.Storage.PostgresDSN = strings.TrimSpace(c.Storage.PostgresDSN)
	if c.Storage.PostgresDSN == "" {
		c.Storage.PostgresDSN = envValue("CASEFLOW_POSTGRES_DSN")
	}
}

func (c *Config) normalizeSources() {
	tp := &c.Sources.TiParser
	tp.URL = strings.TrimRight(strings.TrimSpace(tp.URL), "/")
	if value := envValue("TIPARSER_URL"); value != "" && tp.URL == defaultTiParserURL {
		tp.URL = strings.TrimRight(value, "/")
	}
	tp.APIKey = strings.TrimSpace(tp.APIKey)
	if tp.APIKey == "" {
		tp.APIKey = envValue("TIPARSER_API_KEY")
	}

	ch := &c.Sources.CaseHelper
	ch.URL = strings.TrimRight(strings.TrimSpace(ch.URL), "/")
	if value := envValue("CASEHELPER_API_URL"); value != "" && ch.URL == defaultCaseHelperURL {
		ch.URL = strings.TrimRight(value, "/")
	}
	if ch.Username = strings.TrimSpace(ch.Username); ch.Username == "" {
		ch.Username = envValue("CASEHELPER_USERNAME")
	}
	if ch.Password == "" {
		ch.Password = envValue("CASEHELPER_PASSWORD")
	}
	if ch.AppType = strings.TrimSpace(ch.AppType); ch.AppType == "" {
		if value := envValue("CASEHELPER_APP_TYPE"); value != "" {
			ch.AppType = value
		} else {
			ch.AppType = defaultCaseHelperAppType
		}
	}

	retry := &c.Sources.Retry
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	if retry.MaxBackoffMillis < retry.BaseBackoffMillis {
		retry.MaxBackoffMillis = retry.BaseBackoffMillis
	}
}

func (c *Config) normalizeIngestion() {
	required := make([]string, 0, len(c.Ingestion.Required))
	seen := make(map[string]struct{}, len(c.Ingestion.Required))
	for _, name := range c.Ingestion.Required {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		required = append(required, normalized)
	}
	c.Ingestion.Required = required
}

func (c *Config) normalizeOrchestrator() error {
	if strings.TrimSpace(c.Orchestrator.GraphFile) == "" {
		c.Orchestrator.GraphFile = ""
		return nil
	}
	var err error
	if c.Orchestrator.GraphFile, err = expandPath(strings.TrimSpace(c.Orchestrator.GraphFile)); err != nil {
		return fmt.Errorf("orchestrator.graph_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeHealth() {
	c.Health.Schedule = strings.Join(strings.Fields(c.Health.Schedule), " ")
	if c.Health.Schedule == "" {
		c.Health.Schedule = defaultHealthSchedule
	}
	c.Sensor.InitialCursor = strings.TrimSpace(c.Sensor.InitialCursor)
	if c.Sensor.InitialCursor == "" {
		c.Sensor.InitialCursor = defaultSensorInitialCursor
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envValue(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
