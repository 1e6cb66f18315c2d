package testsupport

import (
	"path/filepath"
	"testing"

	"caseflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.BlobDir = filepath.Join(base, "blobs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Sources.Retry.BaseBackoffMillis = 1
	cfgVal.Sources.Retry.MaxBackoffMillis = 5
	cfgVal.Storage.BlobSigningKey = "test-signing-key"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTiParser points the transcript source at a test server.
func WithTiParser(url, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sources.TiParser.URL = url
		b.cfg.Sources.TiParser.APIKey = apiKey
	}
}

// WithCaseHelper points the case management source at a test server.
func WithCaseHelper(url, username, password string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sources.CaseHelper.URL = url
		b.cfg.Sources.CaseHelper.Username = username
		b.cfg.Sources.CaseHelper.Password = password
	}
}

// WithRequired overrides the list of required sources.
func WithRequired(sources ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingestion.Required = append([]string(nil), sources...)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
