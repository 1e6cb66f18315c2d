package api

import (
	"sort"
	"time"

	"caseflow/internal/blobstore"
	"caseflow/internal/health"
	"caseflow/internal/ingest"
	"caseflow/internal/orchestrator"
	"caseflow/internal/replay"
	"caseflow/internal/staging"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromRun converts a run record to its API representation.
func FromRun(run orchestrator.Run) RunView {
	view := RunView{
		ID:         run.ID,
		Key:        run.Key,
		Kind:       string(run.Kind),
		CaseNumber: run.CaseNumber,
		Status:     string(run.Status),
		Error:      run.Error,
		StartedAt:  formatTime(run.StartedAt),
		FinishedAt: formatTimePtr(run.FinishedAt),
		Units:      make([]UnitOutcome, 0, len(run.Outcomes)),
	}
	for _, outcome := range run.Outcomes {
		view.Units = append(view.Units, fromOutcome(outcome))
	}
	return view
}

// FromRuns converts a slice of runs.
func FromRuns(runs []orchestrator.Run) []RunView {
	out := make([]RunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

func fromOutcome(outcome orchestrator.Outcome) UnitOutcome {
	unit := UnitOutcome{
		Unit:       outcome.Unit,
		Kind:       string(outcome.Kind),
		Status:     outcome.Status,
		Error:      outcome.Error,
		StartedAt:  formatTime(outcome.StartedAt),
		FinishedAt: formatTime(outcome.FinishedAt),
	}
	if !outcome.StartedAt.IsZero() && outcome.FinishedAt.After(outcome.StartedAt) {
		unit.DurationMillis = outcome.FinishedAt.Sub(outcome.StartedAt).Milliseconds()
	}
	// Runs loaded back from storage carry their details as decoded JSON; only
	// in-memory runs still hold the typed result.
	if result, ok := outcome.Detail.(ingest.Result); ok {
		unit.StagedRecordID = result.StagedRecordID
		unit.Endpoint = result.Endpoint
		unit.BlobIDs = result.BlobIDs
		unit.Duplicates = result.Duplicates
	}
	return unit
}

// FromSourceSummaries converts staging summaries, scoring each source.
func FromSourceSummaries(summaries []staging.SourceSummary) []SourceSummary {
	out := make([]SourceSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, SourceSummary{
			Source:         string(s.SourceType),
			Total:          s.Total,
			Processed:      s.Processed,
			Pending:        s.Pending,
			Failed:         s.Failed,
			Score:          health.HealthScore(s.Total, s.Processed),
			FirstIngestion: formatTimePtr(s.FirstIngestion),
			LastIngestion:  formatTimePtr(s.LastIngestion),
		})
	}
	return out
}

// FromRecords converts staged records, leaving payloads out.
func FromRecords(records []staging.Record) []StagedRecord {
	out := make([]StagedRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, StagedRecord{
			ID:            rec.ID,
			CaseNumber:    rec.CaseNumber,
			Source:        string(rec.SourceType),
			Status:        string(rec.Status),
			Error:         rec.Error,
			APISource:     rec.APISource,
			APIEndpoint:   rec.APIEndpoint,
			SchemaVersion: rec.SchemaVersion,
			InsertedAt:    formatTime(rec.InsertedAt),
			ProcessedAt:   formatTimePtr(rec.ProcessedAt),
		})
	}
	return out
}

func fromAlerts(alerts []health.Alert) []HealthAlert {
	out := make([]HealthAlert, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, HealthAlert{
			Stage:   string(alert.Stage),
			Kind:    alert.Kind,
			Subject: alert.Subject,
			Message: alert.Message,
		})
	}
	return out
}

// FromHealthReport converts a health report to its API payload.
func FromHealthReport(report health.Report) HealthReport {
	dto := HealthReport{
		RunID:       report.RunID,
		Verdict:     string(report.Verdict),
		GeneratedAt: formatTime(report.GeneratedAt),
		Stages:      make([]HealthStage, 0, len(report.Stages)),
		Alerts:      fromAlerts(report.Alerts()),
	}
	for _, stage := range report.Stages {
		hs := HealthStage{
			Stage:      string(stage.Stage),
			Verdict:    string(stage.Verdict),
			Error:      stage.Error,
			SampleCase: stage.SampleCase,
			Alerts:     fromAlerts(stage.Alerts),
			CheckedAt:  formatTime(stage.CheckedAt),
		}
		for _, src := range stage.Sources {
			hs.Sources = append(hs.Sources, SourceSummary{
				Source:         string(src.Source),
				Total:          src.Total,
				Processed:      src.Processed,
				Pending:        src.Pending,
				Failed:         src.Failed,
				Score:          src.Score,
				FirstIngestion: formatTimePtr(src.FirstIngestion),
				LastIngestion:  formatTimePtr(src.LastIngestion),
			})
		}
		for _, p := range stage.Propagation {
			hs.Propagation = append(hs.Propagation, PropagationCount{
				Entity:  p.Entity,
				Layer:   string(p.Layer),
				Source:  string(p.Source),
				Staged:  p.Staged,
				Derived: p.Derived,
			})
		}
		for _, c := range stage.Computations {
			hs.Computations = append(hs.Computations, ComputationResult{
				Name:           c.Name,
				OK:             c.OK,
				Unresolved:     c.Unresolved,
				Error:          c.Error,
				DurationMillis: c.Elapsed.Milliseconds(),
			})
		}
		dto.Stages = append(dto.Stages, hs)
	}
	return dto
}

// FromReplayResult converts a replay outcome.
func FromReplayResult(result replay.Result) ReplayResult {
	dto := ReplayResult{
		Selector: result.Selector,
		Affected: make(map[string]int64, len(result.Affected)),
		Total:    result.Total,
	}
	for source, n := range result.Affected {
		dto.Affected[string(source)] = n
	}
	return dto
}

// ToReplayRequest converts an API replay request.
func ToReplayRequest(req ReplayRequest) replay.Request {
	return replay.Request{
		Source:     req.Source,
		RecordID:   req.RecordID,
		CaseNumber: req.CaseNumber,
		Failed:     req.Failed,
	}
}

// SortRuns orders runs newest first.
func SortRuns(runs []RunView) {
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt > runs[j].StartedAt })
}

// FromBlob converts blob metadata.
func FromBlob(obj blobstore.Object) BlobObject {
	return BlobObject{
		ID:               obj.ID,
		CaseNumber:       obj.WorkUnit,
		Category:         string(obj.Category),
		FileName:         obj.FileName,
		SizeBytes:        obj.SizeBytes,
		MediaType:        obj.MediaType,
		ContentHash:      obj.ContentHash,
		StoragePath:      obj.StoragePath,
		ProcessingStatus: obj.ProcessingStatus,
		ParsedRecordID:   obj.ParsedRecordID,
		CreatedAt:        formatTime(obj.CreatedAt),
	}
}

// FromUpload converts an upload outcome, marking deduplicated content.
func FromUpload(result blobstore.UploadResult) BlobObject {
	dto := FromBlob(result.Object)
	dto.Duplicate = result.IsDuplicate
	return dto
}
