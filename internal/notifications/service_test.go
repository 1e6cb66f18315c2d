package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"caseflow/internal/config"
	"caseflow/internal/health"
	"caseflow/internal/notifications"
	"caseflow/internal/orchestrator"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		captured = append(captured, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func configFor(url string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	cfg.Notifications.RequestTimeout = 5
	cfg.Notifications.HealthAlerts = true
	cfg.Notifications.RunFailures = true
	return &cfg
}

func degradedReport() health.Report {
	return health.NewReport("run-1", []health.StageResult{
		{
			Stage:   health.StageStaging,
			Verdict: health.Degraded,
			Alerts: []health.Alert{
				{Stage: health.StageStaging, Kind: health.AlertLowScore, Subject: "at", Message: "health score 94.0 below 95.0"},
			},
		},
		{
			Stage:   health.StagePropagation,
			Verdict: health.Degraded,
			Alerts: []health.Alert{
				{Stage: health.StagePropagation, Kind: health.AlertPropagation, Subject: "income_document", Message: "12 staged wi records but no silver income_document records"},
			},
		},
	}, time.Now())
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.PublishHealth(context.Background(), degradedReport()); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestPublishHealthFormatsAlerts(t *testing.T) {
	server, captured := newCaptureServer(t)
	svc := notifications.NewService(configFor(server.URL))

	if err := svc.PublishHealth(context.Background(), degradedReport()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := captured()
	if len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}
	want := "Pipeline degraded: 2 alerts\n[staging] at: health score 94.0 below 95.0\n[propagation] income_document: 12 staged wi records but no silver income_document records"
	if got[0].body != want {
		t.Fatalf("unexpected body %q", got[0].body)
	}
	if got[0].title != "Caseflow - Pipeline Degraded" {
		t.Fatalf("unexpected title %q", got[0].title)
	}
	if got[0].tags != "caseflow,health,degraded" || got[0].priority != "high" {
		t.Fatalf("unexpected tags %q priority %q", got[0].tags, got[0].priority)
	}
}

func TestPublishHealthSkipsCleanReports(t *testing.T) {
	server, captured := newCaptureServer(t)
	svc := notifications.NewService(configFor(server.URL))

	clean := health.NewReport("run-2", []health.StageResult{{Stage: health.StageFunctional, Verdict: health.Unknown}}, time.Now())
	if err := svc.PublishHealth(context.Background(), clean); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n := len(captured()); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestHealthAlertsCanBeDisabled(t *testing.T) {
	server, captured := newCaptureServer(t)
	cfg := configFor(server.URL)
	cfg.Notifications.HealthAlerts = false
	svc := notifications.NewService(cfg)
	if err := svc.PublishHealth(context.Background(), degradedReport()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n := len(captured()); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestNotifyRunFailed(t *testing.T) {
	server, captured := newCaptureServer(t)
	svc := notifications.NewService(configFor(server.URL))

	run := orchestrator.Run{ID: "r-9", Key: "case_1295022", Kind: orchestrator.KindIngest, CaseNumber: "1295022", Status: orchestrator.RunFailed, Error: "ingest_at: tiparser unavailable"}
	if err := svc.NotifyRunFailed(context.Background(), run); err != nil {
		t.Fatalf("notify: %v", err)
	}
	run.Status = orchestrator.RunCompleted
	if err := svc.NotifyRunFailed(context.Background(), run); err != nil {
		t.Fatalf("notify: %v", err)
	}
	got := captured()
	if len(got) != 1 {
		t.Fatalf("expected only the failed run to notify, got %d", len(got))
	}
	if got[0].body != "Run r-9 for case 1295022 failed\ningest_at: tiparser unavailable" {
		t.Fatalf("unexpected body %q", got[0].body)
	}
	if got[0].tags != "caseflow,ingest,failed" {
		t.Fatalf("unexpected tags %q", got[0].tags)
	}
}

func TestNotifyErrorAndTest(t *testing.T) {
	server, captured := newCaptureServer(t)
	svc := notifications.NewService(configFor(server.URL))

	if err := svc.NotifyError(context.Background(), errors.New("database is locked"), "sensor"); err != nil {
		t.Fatalf("notify error: %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("test notification: %v", err)
	}
	got := captured()
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	if got[0].body != "Error with sensor: database is locked" || got[0].priority != "high" {
		t.Fatalf("unexpected error notification %+v", got[0])
	}
	if got[1].priority != "low" {
		t.Fatalf("unexpected test priority %q", got[1].priority)
	}
}

func TestNtfyErrorStatusSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	svc := notifications.NewService(configFor(server.URL))
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestRunHookOnlyForFailedIngestRuns(t *testing.T) {
	server, captured := newCaptureServer(t)
	hook := notifications.RunHook(notifications.NewService(configFor(server.URL)), nil)

	hook(orchestrator.Run{ID: "h", Kind: orchestrator.KindHealth, Status: orchestrator.RunFailed})
	hook(orchestrator.Run{ID: "ok", Kind: orchestrator.KindIngest, Status: orchestrator.RunCompleted})
	hook(orchestrator.Run{ID: "bad", Key: "case_1", Kind: orchestrator.KindIngest, CaseNumber: "1", Status: orchestrator.RunFailed})

	deadline := time.Now().Add(2 * time.Second)
	for len(captured()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	got := captured()
	if len(got) != 1 || !strings.HasPrefix(got[0].body, "Run bad for case 1 failed") {
		t.Fatalf("unexpected notifications %+v", got)
	}
}
