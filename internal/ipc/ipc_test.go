package ipc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"caseflow/internal/api"
	"caseflow/internal/daemon"
	"caseflow/internal/ipc"
	"caseflow/internal/logging"
	"caseflow/internal/sources"
	"caseflow/internal/staging"
	"caseflow/internal/testsupport"
)

type fixedClient struct {
	body string
}

func (fixedClient) Name() string { return "fixed" }

func (f fixedClient) Fetch(_ context.Context, caseNumber string) (sources.Payload, error) {
	return sources.Payload{Body: json.RawMessage(f.body), APISource: "fixed", Endpoint: "/fixed/" + caseNumber}, nil
}

func (fixedClient) HealthCheck(context.Context) error { return nil }

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Sensor.Enabled = false
	cfg.Transform.Enabled = false
	cfg.Paths.APIBind = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	db := testsupport.MustOpenDB(t, cfg)
	logger := logging.NewNop()

	registry := sources.NewRegistry()
	registry.Register(staging.SourceAT, fixedClient{body: testsupport.ATPayload})
	registry.Register(staging.SourceTRT, fixedClient{body: testsupport.TRTPayload})
	c, err := daemon.NewComponents(cfg, db, logger, daemon.ComponentOptions{Sources: registry})
	if err != nil {
		t.Fatalf("NewComponents: %v", err)
	}
	d, err := daemon.New(cfg, db, logger, c)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.DataDir, "caseflow.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	var shutdowns atomic.Int32
	srv.SetShutdown(func() { shutdowns.Add(1) })
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}

	added, err := client.CaseAdd(ipc.CaseAddRequest{CaseNumber: "4410023", Label: "Doe"})
	if err != nil {
		t.Fatalf("CaseAdd failed: %v", err)
	}
	if added.Status != api.CaseNotStarted || added.Label != "Doe" {
		t.Fatalf("unexpected case after add: %+v", added)
	}

	ingest, err := client.CaseIngest(ipc.CaseIngestRequest{CaseNumber: "4410023", Mode: api.ModeSync})
	if err != nil {
		t.Fatalf("CaseIngest failed: %v", err)
	}
	if ingest.Status != api.TriggerCompleted {
		t.Fatalf("expected completed ingest, got %+v", ingest)
	}

	caseStatus, err := client.CaseStatus("4410023")
	if err != nil {
		t.Fatalf("CaseStatus failed: %v", err)
	}
	if caseStatus.Status != api.CaseStagedOnly || caseStatus.Counts.Staged != 2 {
		t.Fatalf("unexpected case status: %+v", caseStatus)
	}

	run, err := client.RunShow(ingest.RunID)
	if err != nil {
		t.Fatalf("RunShow failed: %v", err)
	}
	if run.Run.ID != ingest.RunID || len(run.Run.Units) == 0 {
		t.Fatalf("unexpected run: %+v", run.Run)
	}
	if _, err := client.RunShow("missing-run"); err == nil {
		t.Fatal("expected error for unknown run")
	}

	runs, err := client.RunList(ipc.RunListRequest{CaseNumber: "4410023"})
	if err != nil {
		t.Fatalf("RunList failed: %v", err)
	}
	if len(runs.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs.Runs))
	}

	listed, err := client.StagingList(ipc.StagingListRequest{Source: "at", CaseNumber: "4410023"})
	if err != nil {
		t.Fatalf("StagingList failed: %v", err)
	}
	if len(listed.Records) != 1 {
		t.Fatalf("expected 1 staged AT record, got %d", len(listed.Records))
	}

	replayed, err := client.Replay(ipc.ReplayRequest{Failed: true})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if replayed.Total != 0 {
		t.Fatalf("expected nothing to replay, got %d", replayed.Total)
	}

	health, err := client.Health()
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Available {
		t.Fatal("expected no health report before a health run")
	}

	upload, err := client.BlobUpload(ipc.BlobUploadRequest{
		CaseNumber: "4410023",
		Category:   "AT",
		FileName:   "transcript.pdf",
		MediaType:  "application/pdf",
		Content:    testsupport.FakePDF("ipc"),
	})
	if err != nil {
		t.Fatalf("BlobUpload failed: %v", err)
	}
	link, err := client.BlobLink(upload.Blob.ID, time.Minute)
	if err != nil {
		t.Fatalf("BlobLink failed: %v", err)
	}
	if !strings.Contains(link.URL, upload.Blob.ID) {
		t.Fatalf("expected link to reference blob, got %s", link.URL)
	}

	pdf := testsupport.FakePDF("ipc download")
	pdfSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	}))
	defer pdfSrv.Close()
	downloaded, err := client.BlobUpload(ipc.BlobUploadRequest{CaseNumber: "4410023", Category: "WI", URL: pdfSrv.URL + "/wi", FileName: "WI 2024.pdf"})
	if err != nil {
		t.Fatalf("BlobUpload by URL failed: %v", err)
	}
	if downloaded.Blob.StoragePath != "4410023/WI/WI 2024.pdf" || downloaded.Blob.Duplicate {
		t.Fatalf("unexpected downloaded blob %+v", downloaded.Blob)
	}
	if _, err := client.BlobUpload(ipc.BlobUploadRequest{CaseNumber: "4410023", URL: pdfSrv.URL, Content: pdf}); err == nil {
		t.Fatal("expected error when both content and URL are set")
	}

	got, err := client.BlobGet(upload.Blob.ID)
	if err != nil {
		t.Fatalf("BlobGet failed: %v", err)
	}
	if got.Blob.ID != upload.Blob.ID || len(got.Content) == 0 {
		t.Fatalf("unexpected blob get response: %+v", got.Blob)
	}
	if _, err := client.BlobGet("missing"); err == nil {
		t.Fatal("expected error for unknown blob")
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notify.Sent {
		t.Fatal("expected no notification without a topic")
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected Stopped=true")
	}
	deadline := time.Now().Add(2 * time.Second)
	for shutdowns.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if shutdowns.Load() != 1 {
		t.Fatal("expected shutdown hook to run once")
	}
}
