package api

import (
	"testing"
	"time"

	"caseflow/internal/health"
	"caseflow/internal/ingest"
	"caseflow/internal/orchestrator"
	"caseflow/internal/staging"
)

func TestFromRunFlattensIngestDetail(t *testing.T) {
	started := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	run := orchestrator.Run{
		ID:         "run-1",
		Key:        "case_1295022",
		Kind:       orchestrator.KindIngest,
		CaseNumber: "1295022",
		Status:     orchestrator.RunCompleted,
		StartedAt:  started,
		FinishedAt: &finished,
		Outcomes: []orchestrator.Outcome{{
			Unit:       "ingest_at",
			Kind:       orchestrator.KindIngest,
			Status:     "stored",
			StartedAt:  started,
			FinishedAt: finished,
			Detail:     ingest.Result{Source: staging.SourceAT, StagedRecordID: "rec-1", Endpoint: "/analysis/at/1295022"},
		}},
	}

	view := FromRun(run)
	if view.Status != "completed" || view.Kind != "ingest" {
		t.Fatalf("unexpected run view: %+v", view)
	}
	if view.StartedAt != "2026-10-18T08:00:00.000Z" {
		t.Fatalf("unexpected started timestamp: %q", view.StartedAt)
	}
	if len(view.Units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(view.Units))
	}
	unit := view.Units[0]
	if unit.StagedRecordID != "rec-1" || unit.Endpoint != "/analysis/at/1295022" {
		t.Fatalf("ingest detail not flattened: %+v", unit)
	}
	if unit.DurationMillis != 1500 {
		t.Fatalf("unexpected duration: %d", unit.DurationMillis)
	}
}

func TestFromRunWithoutFinish(t *testing.T) {
	view := FromRun(orchestrator.Run{ID: "run-2", Status: orchestrator.RunRunning})
	if view.FinishedAt != "" {
		t.Fatalf("expected no finished timestamp, got %q", view.FinishedAt)
	}
	if view.Units == nil {
		t.Fatal("expected empty, non-nil units")
	}
}

func TestFromHealthReport(t *testing.T) {
	generated := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	report := health.NewReport("run-9", []health.StageResult{
		{
			Stage:   health.StageStaging,
			Verdict: health.Degraded,
			Sources: []health.SourceMetrics{{Source: staging.SourceAT, Total: 100, Processed: 94, Pending: 6, Score: 94}},
			Alerts:  []health.Alert{{Stage: health.StageStaging, Kind: health.AlertLowScore, Subject: "at", Message: "score 94.0 below 95.0"}},
		},
		{
			Stage:        health.StageFunctional,
			Verdict:      health.Healthy,
			SampleCase:   "1295022",
			Computations: []health.ComputationResult{{Name: "se_tax", OK: true, Elapsed: 3 * time.Millisecond}},
		},
	}, generated)

	dto := FromHealthReport(report)
	if dto.Verdict != "DEGRADED" {
		t.Fatalf("unexpected verdict: %q", dto.Verdict)
	}
	if len(dto.Stages) != 2 || dto.Stages[0].Stage != "staging" {
		t.Fatalf("unexpected stages: %+v", dto.Stages)
	}
	if len(dto.Alerts) != 1 || dto.Alerts[0].Kind != health.AlertLowScore {
		t.Fatalf("unexpected alerts: %+v", dto.Alerts)
	}
	if got := dto.Stages[1].Computations[0].DurationMillis; got != 3 {
		t.Fatalf("unexpected computation duration: %d", got)
	}
	if dto.Stages[1].Alerts == nil {
		t.Fatal("expected empty, non-nil alerts")
	}
}

func TestFromSourceSummariesScores(t *testing.T) {
	got := FromSourceSummaries([]staging.SourceSummary{
		{SourceType: staging.SourceAT, Total: 100, Processed: 94},
		{SourceType: staging.SourceWI},
	})
	if got[0].Score != 94 {
		t.Fatalf("unexpected score: %v", got[0].Score)
	}
	if got[1].Score != 100 {
		t.Fatalf("empty source should score 100, got %v", got[1].Score)
	}
}
