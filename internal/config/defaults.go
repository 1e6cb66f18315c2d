package config

const (
	defaultConfigPath          = "~/.config/caseflow/config.toml"
	defaultDataDir             = "~/.local/share/caseflow"
	defaultLogDir              = "~/.local/share/caseflow/logs"
	defaultBlobDir             = "~/.local/share/caseflow/blobs"
	defaultAPIBind             = "127.0.0.1:7590"
	defaultStorageDriver       = "sqlite"
	defaultMaxBlobMB           = 100
	defaultTiParserURL         = "http://localhost:8080"
	defaultCaseHelperURL       = "https://api.casehelper.com"
	defaultCaseHelperAppType   = "transcript_pipeline"
	defaultSourceTimeout       = 120
	defaultRetryAttempts       = 3
	defaultRetryBaseBackoff    = 500
	defaultRetryMaxBackoff     = 8000
	defaultDownloadTimeout     = 60
	defaultFetchTimeout        = 180
	defaultMaxParallel         = 4
	defaultSyncTimeout         = 300
	defaultHealthSchedule      = "0 8 * * *"
	defaultPendingThreshold    = 5
	defaultScoreThreshold      = 95.0
	defaultSensorInterval      = 60
	defaultSensorInitialCursor = "2024-01-01T00:00:00Z"
	defaultTransformPoll       = 5
	defaultTransformRetry      = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			BlobDir: defaultBlobDir,
			APIBind: defaultAPIBind,
		},
		Storage: Storage{
			Driver:    defaultStorageDriver,
			MaxBlobMB: defaultMaxBlobMB,
		},
		Sources: Sources{
			TiParser: TiParser{
				URL:            defaultTiParserURL,
				TimeoutSeconds: defaultSourceTimeout,
			},
			CaseHelper: CaseHelper{
				URL:            defaultCaseHelperURL,
				AppType:        defaultCaseHelperAppType,
				TimeoutSeconds: defaultSourceTimeout,
			},
			Retry: Retry{
				Attempts:           defaultRetryAttempts,
				BaseBackoffMillis:  defaultRetryBaseBackoff,
				MaxBackoffMillis:   defaultRetryMaxBackoff,
				DownloadTimeoutSec: defaultDownloadTimeout,
			},
		},
		Ingestion: Ingestion{
			Required:         []string{"at"},
			Documents:        true,
			FetchTimeoutSecs: defaultFetchTimeout,
		},
		Orchestrator: Orchestrator{
			MaxParallel:        defaultMaxParallel,
			SyncTimeoutSeconds: defaultSyncTimeout,
		},
		Health: Health{
			Schedule:         defaultHealthSchedule,
			PendingThreshold: defaultPendingThreshold,
			ScoreThreshold:   defaultScoreThreshold,
		},
		Sensor: Sensor{
			Enabled:         true,
			IntervalSeconds: defaultSensorInterval,
			InitialCursor:   defaultSensorInitialCursor,
		},
		Transform: Transform{
			Enabled:             true,
			PollIntervalSeconds: defaultTransformPoll,
			ErrorRetrySeconds:   defaultTransformRetry,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			HealthAlerts:   true,
			RunFailures:    true,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
