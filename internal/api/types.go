package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Mode selects whether a trigger waits for the run.
type Mode string

const (
	ModeAsync Mode = "async"
	ModeSync  Mode = "sync"
)

// Trigger statuses.
const (
	TriggerTriggered = "triggered"
	TriggerRunning   = "running"
	TriggerCompleted = "completed"
	TriggerFailed    = "failed"
)

// Overall case statuses reported by GetStatus.
const (
	CaseNotStarted          = "not_started"
	CaseStagedOnly          = "staged_only"
	CasePartiallyPropagated = "partially_propagated"
	CaseComplete            = "complete"
)

// TriggerRequest asks for ingestion of one case.
type TriggerRequest struct {
	CaseNumber string `json:"caseNumber"`
	Label      string `json:"label,omitempty"`
	Mode       Mode   `json:"mode,omitempty"`
}

// TriggerResult is the outcome of a trigger call.
type TriggerResult struct {
	CaseNumber string `json:"caseNumber"`
	Status     string `json:"status"`
	RunID      string `json:"runId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// LayerCounts are a case's record counts per layer.
type LayerCounts struct {
	Staged    int64 `json:"staged"`
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Silver    int64 `json:"silver"`
	Gold      int64 `json:"gold"`
}

// CaseStatus reports how far a case has progressed through the layers.
type CaseStatus struct {
	CaseNumber string      `json:"caseNumber"`
	Label      string      `json:"label,omitempty"`
	Status     string      `json:"status"`
	Counts     LayerCounts `json:"counts"`
	LastRun    *RunView    `json:"lastRun,omitempty"`
}

// UnitOutcome is one unit's result within a run.
type UnitOutcome struct {
	Unit           string   `json:"unit"`
	Kind           string   `json:"kind"`
	Status         string   `json:"status"`
	Error          string   `json:"error,omitempty"`
	StartedAt      string   `json:"startedAt,omitempty"`
	FinishedAt     string   `json:"finishedAt,omitempty"`
	DurationMillis int64    `json:"durationMillis"`
	StagedRecordID string   `json:"stagedRecordId,omitempty"`
	Endpoint       string   `json:"endpoint,omitempty"`
	BlobIDs        []string `json:"blobIds,omitempty"`
	Duplicates     int      `json:"duplicates,omitempty"`
}

// RunView describes a run in a transport-friendly format.
type RunView struct {
	ID         string        `json:"id"`
	Key        string        `json:"key"`
	Kind       string        `json:"kind"`
	CaseNumber string        `json:"caseNumber,omitempty"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	StartedAt  string        `json:"startedAt,omitempty"`
	FinishedAt string        `json:"finishedAt,omitempty"`
	Units      []UnitOutcome `json:"units"`
}

// RunListResponse wraps a collection of runs.
type RunListResponse struct {
	Runs []RunView `json:"runs"`
}

// SourceSummary aggregates staged records for one source.
type SourceSummary struct {
	Source         string  `json:"source"`
	Total          int64   `json:"total"`
	Processed      int64   `json:"processed"`
	Pending        int64   `json:"pending"`
	Failed         int64   `json:"failed"`
	Score          float64 `json:"score"`
	FirstIngestion string  `json:"firstIngestion,omitempty"`
	LastIngestion  string  `json:"lastIngestion,omitempty"`
}

// StagedRecord describes one staged record without its payload.
type StagedRecord struct {
	ID            string `json:"id"`
	CaseNumber    string `json:"caseNumber"`
	Source        string `json:"source"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	APISource     string `json:"apiSource,omitempty"`
	APIEndpoint   string `json:"apiEndpoint,omitempty"`
	SchemaVersion string `json:"schemaVersion,omitempty"`
	InsertedAt    string `json:"insertedAt,omitempty"`
	ProcessedAt   string `json:"processedAt,omitempty"`
}

// HealthAlert is one finding of a health check.
type HealthAlert struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// HealthStage is the result of one health stage.
type HealthStage struct {
	Stage        string              `json:"stage"`
	Verdict      string              `json:"verdict"`
	Error        string              `json:"error,omitempty"`
	SampleCase   string              `json:"sampleCase,omitempty"`
	Sources      []SourceSummary     `json:"sources,omitempty"`
	Propagation  []PropagationCount  `json:"propagation,omitempty"`
	Computations []ComputationResult `json:"computations,omitempty"`
	Alerts       []HealthAlert       `json:"alerts"`
	CheckedAt    string              `json:"checkedAt,omitempty"`
}

// PropagationCount compares staged and derived counts for one entity type.
type PropagationCount struct {
	Entity  string `json:"entity"`
	Layer   string `json:"layer"`
	Source  string `json:"source"`
	Staged  int64  `json:"staged"`
	Derived int64  `json:"derived"`
}

// ComputationResult is one business computation outcome.
type ComputationResult struct {
	Name           string `json:"name"`
	OK             bool   `json:"ok"`
	Unresolved     bool   `json:"unresolved,omitempty"`
	Error          string `json:"error,omitempty"`
	DurationMillis int64  `json:"durationMillis"`
}

// HealthReport is the aggregated result of a health run.
type HealthReport struct {
	RunID       string        `json:"runId,omitempty"`
	Verdict     string        `json:"verdict"`
	GeneratedAt string        `json:"generatedAt,omitempty"`
	Stages      []HealthStage `json:"stages"`
	Alerts      []HealthAlert `json:"alerts"`
}

// ReplayRequest selects staged records to reset to pending. Exactly one of
// RecordID, CaseNumber or Failed must be set.
type ReplayRequest struct {
	Source     string `json:"source,omitempty"`
	RecordID   string `json:"recordId,omitempty"`
	CaseNumber string `json:"caseNumber,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
}

// ReplayResult reports how many records were reset per source.
type ReplayResult struct {
	Selector string           `json:"selector"`
	Affected map[string]int64 `json:"affected"`
	Total    int64            `json:"total"`
}

// WorkerStatus summarizes the transformation worker.
type WorkerStatus struct {
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// SensorStatus summarizes the new-case sensor.
type SensorStatus struct {
	Enabled        bool   `json:"enabled"`
	LastStatus     string `json:"lastStatus,omitempty"`
	LastTriggers   int    `json:"lastTriggers"`
	Cursor         string `json:"cursor,omitempty"`
	LastEvaluation string `json:"lastEvaluation,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool            `json:"running"`
	PID          int             `json:"pid"`
	DatabasePath string          `json:"databasePath"`
	LockFilePath string          `json:"lockFilePath"`
	SocketPath   string          `json:"socketPath"`
	APIBind      string          `json:"apiBind,omitempty"`
	Worker       WorkerStatus    `json:"worker"`
	Sensor       SensorStatus    `json:"sensor"`
	ActiveRuns   []RunView       `json:"activeRuns"`
	Staging      []SourceSummary `json:"staging"`
	Health       *HealthReport   `json:"health,omitempty"`
}

// BlobLink is a signed download link for a stored blob.
type BlobLink struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}

// BlobObject describes a stored attachment.
type BlobObject struct {
	ID               string `json:"id"`
	CaseNumber       string `json:"caseNumber"`
	Category         string `json:"category"`
	FileName         string `json:"fileName"`
	SizeBytes        int64  `json:"sizeBytes"`
	MediaType        string `json:"mediaType,omitempty"`
	ContentHash      string `json:"contentHash"`
	StoragePath      string `json:"storagePath"`
	ProcessingStatus string `json:"processingStatus"`
	ParsedRecordID   string `json:"parsedRecordId,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
	Duplicate        bool   `json:"duplicate,omitempty"`
}
