package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"caseflow/internal/api"
	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           withRequestID(srv.routes(cfg.Paths.APIToken, cfg.Metrics.Enabled)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Sync triggers may hold the connection for the full sync timeout.
		WriteTimeout: cfg.SyncTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string, withMetrics bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", authMiddleware(token, s.handleStatus))
	mux.HandleFunc("POST /api/cases/{id}/ingest", authMiddleware(token, s.handleIngest))
	mux.HandleFunc("GET /api/cases/{id}/status", authMiddleware(token, s.handleCaseStatus))
	mux.HandleFunc("GET /api/runs", authMiddleware(token, s.handleRuns))
	mux.HandleFunc("GET /api/runs/{id}", authMiddleware(token, s.handleRun))
	mux.HandleFunc("GET /api/health", authMiddleware(token, s.handleHealth))
	mux.HandleFunc("POST /api/health/run", authMiddleware(token, s.handleHealthRun))
	mux.HandleFunc("POST /api/replay", authMiddleware(token, s.handleReplay))
	// Signed URLs carry their own authorization.
	mux.HandleFunc("GET /api/blobs/{id}", s.handleBlob)
	if withMetrics {
		mux.HandleFunc("GET /metrics", authMiddleware(token, s.daemon.c.Metrics.Handler().ServeHTTP))
	}
	return mux
}

// withRequestID tags each request context with a correlation id, reusing the
// caller's X-Request-ID when present.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	mode, err := api.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	req := api.TriggerRequest{
		CaseNumber: r.PathValue("id"),
		Label:      r.URL.Query().Get("label"),
		Mode:       mode,
	}
	result, err := s.daemon.TriggerIngestion(r.Context(), req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	status := http.StatusOK
	if result.Status == api.TriggerTriggered || result.Status == api.TriggerRunning {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, result)
}

func (s *apiServer) handleCaseStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.CaseStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.daemon.ListRuns(r.Context(), r.URL.Query().Get("case"), limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: runs})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.daemon.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.Health()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type healthRunResponse struct {
	Run    api.RunView       `json:"run"`
	Report *api.HealthReport `json:"report,omitempty"`
}

func (s *apiServer) handleHealthRun(w http.ResponseWriter, r *http.Request) {
	wait := r.URL.Query().Get("wait") == "1" || strings.EqualFold(r.URL.Query().Get("wait"), "true")
	run, report, err := s.daemon.RunHealth(r.Context(), wait)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	status := http.StatusAccepted
	if report != nil {
		status = http.StatusOK
	}
	s.writeJSON(w, status, healthRunResponse{Run: run, Report: report})
}

func (s *apiServer) handleReplay(w http.ResponseWriter, r *http.Request) {
	var req api.ReplayRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid replay request: "+err.Error())
		return
	}
	result, err := s.daemon.Replay(r.Context(), req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleBlob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	query := r.URL.Query()
	blobs := s.daemon.c.Blobs
	if err := blobs.VerifySignature(id, query.Get("expires"), query.Get("sig")); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, services.ErrConfiguration) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err.Error())
		return
	}
	obj, err := blobs.Get(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	data, err := blobs.Read(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	mediaType := obj.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", obj.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// statusFor maps error markers to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrStorageUnavailable), errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log().Warn("api request failed", logging.Error(err), logging.Int("status", status))
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
