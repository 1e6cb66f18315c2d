package ipc

import "caseflow/internal/api"

// StartRequest triggers daemon background loops.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon process.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon runtime status.
type StatusResponse = api.DaemonStatus

// CaseAddRequest registers a case for the sensor.
type CaseAddRequest struct {
	CaseNumber string `json:"case_number"`
	Label      string `json:"label"`
}

// CaseIngestRequest triggers ingestion for a case.
type CaseIngestRequest = api.TriggerRequest

// CaseIngestResponse is the trigger outcome.
type CaseIngestResponse = api.TriggerResult

// CaseStatusRequest fetches per-layer progress for a case.
type CaseStatusRequest struct {
	CaseNumber string `json:"case_number"`
}

// CaseStatusResponse is a case's per-layer progress.
type CaseStatusResponse = api.CaseStatus

// RunShowRequest fetches one run.
type RunShowRequest struct {
	ID string `json:"id"`
}

// RunShowResponse wraps one run.
type RunShowResponse struct {
	Run api.RunView `json:"run"`
}

// RunListRequest lists recent runs.
type RunListRequest struct {
	CaseNumber string `json:"case_number"`
	Limit      int    `json:"limit"`
}

// RunListResponse contains recent runs, newest first.
type RunListResponse struct {
	Runs []api.RunView `json:"runs"`
}

// StagingSummaryRequest fetches per-source staging counts.
type StagingSummaryRequest struct{}

// StagingSummaryResponse contains per-source staging counts.
type StagingSummaryResponse struct {
	Sources []api.SourceSummary `json:"sources"`
}

// StagingListRequest lists staged records of one source by case or status.
type StagingListRequest struct {
	Source     string `json:"source"`
	CaseNumber string `json:"case_number"`
	Status     string `json:"status"`
}

// StagingListResponse contains staged records without payloads.
type StagingListResponse struct {
	Records []api.StagedRecord `json:"records"`
}

// ReplayRequest selects staged records to reset.
type ReplayRequest = api.ReplayRequest

// ReplayResponse reports reset counts.
type ReplayResponse = api.ReplayResult

// HealthRequest fetches the latest health report.
type HealthRequest struct{}

// HealthResponse wraps the latest report. Available is false before the
// first health run completes.
type HealthResponse struct {
	Available bool             `json:"available"`
	Report    api.HealthReport `json:"report"`
}

// HealthRunRequest starts a health run, optionally waiting for its report.
type HealthRunRequest struct {
	Wait bool `json:"wait"`
}

// HealthRunResponse carries the run and, when waited for, its report.
type HealthRunResponse struct {
	Run    api.RunView       `json:"run"`
	Report *api.HealthReport `json:"report,omitempty"`
}

// BlobUploadRequest stores an attachment, either from Content or fetched
// from URL.
type BlobUploadRequest struct {
	CaseNumber  string `json:"case_number"`
	URL         string `json:"url,omitempty"`
	Category    string `json:"category"`
	FileName    string `json:"file_name"`
	Subcategory string `json:"subcategory"`
	MediaType   string `json:"media_type"`
	Content     []byte `json:"content"`
}

// BlobUploadResponse describes the stored object.
type BlobUploadResponse struct {
	Blob api.BlobObject `json:"blob"`
}

// BlobGetRequest reads a stored attachment.
type BlobGetRequest struct {
	ID string `json:"id"`
}

// BlobGetResponse carries metadata and content.
type BlobGetResponse struct {
	Blob    api.BlobObject `json:"blob"`
	Content []byte         `json:"content"`
}

// BlobLinkRequest asks for a signed download URL.
type BlobLinkRequest struct {
	ID         string `json:"id"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// BlobLinkResponse contains the signed URL.
type BlobLinkResponse = api.BlobLink

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the notification was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
