package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"caseflow/internal/api"
	"caseflow/internal/blobstore"
	"caseflow/internal/daemon"
	"caseflow/internal/logging"
	"caseflow/internal/services"
)

const defaultBlobLinkTTL = 15 * time.Minute

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	svc    *service
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Caseflow", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		svc:       srv,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// SetShutdown registers the function a Stop request calls after the daemon
// has stopped, typically cancelling the process context.
func (s *Server) SetShutdown(fn func()) {
	s.svc.mu.Lock()
	s.svc.shutdown = fn
	s.svc.mu.Unlock()
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun caseflow stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context

	mu       sync.Mutex
	shutdown func()
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	s.mu.Lock()
	shutdown := s.shutdown
	s.mu.Unlock()
	if shutdown != nil {
		// Let the reply reach the client before the process exits.
		time.AfterFunc(100*time.Millisecond, shutdown)
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) CaseAdd(req CaseAddRequest, resp *CaseStatusResponse) error {
	status, err := s.daemon.AddCase(s.ctx, req.CaseNumber, req.Label)
	if err != nil {
		return err
	}
	*resp = status
	return nil
}

func (s *service) CaseIngest(req CaseIngestRequest, resp *CaseIngestResponse) error {
	result, err := s.daemon.TriggerIngestion(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) CaseStatus(req CaseStatusRequest, resp *CaseStatusResponse) error {
	status, err := s.daemon.CaseStatus(s.ctx, req.CaseNumber)
	if err != nil {
		return err
	}
	*resp = status
	return nil
}

func (s *service) RunShow(req RunShowRequest, resp *RunShowResponse) error {
	run, err := s.daemon.GetRun(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Run = run
	return nil
}

func (s *service) RunList(req RunListRequest, resp *RunListResponse) error {
	runs, err := s.daemon.ListRuns(s.ctx, req.CaseNumber, req.Limit)
	if err != nil {
		return err
	}
	resp.Runs = runs
	return nil
}

func (s *service) StagingSummary(_ StagingSummaryRequest, resp *StagingSummaryResponse) error {
	sources, err := s.daemon.StagingSummary(s.ctx)
	if err != nil {
		return err
	}
	resp.Sources = sources
	return nil
}

func (s *service) StagingList(req StagingListRequest, resp *StagingListResponse) error {
	records, err := s.daemon.ListRecords(s.ctx, req.Source, req.CaseNumber, req.Status)
	if err != nil {
		return err
	}
	resp.Records = records
	return nil
}

func (s *service) Replay(req ReplayRequest, resp *ReplayResponse) error {
	result, err := s.daemon.Replay(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) Health(_ HealthRequest, resp *HealthResponse) error {
	report, err := s.daemon.Health()
	if errors.Is(err, services.ErrNotFound) {
		resp.Available = false
		return nil
	}
	if err != nil {
		return err
	}
	resp.Available = true
	resp.Report = report
	return nil
}

func (s *service) HealthRun(req HealthRunRequest, resp *HealthRunResponse) error {
	run, report, err := s.daemon.RunHealth(s.ctx, req.Wait)
	if err != nil {
		return err
	}
	resp.Run = run
	resp.Report = report
	return nil
}

func (s *service) BlobUpload(req BlobUploadRequest, resp *BlobUploadResponse) error {
	var (
		obj api.BlobObject
		err error
	)
	switch rawURL := strings.TrimSpace(req.URL); {
	case rawURL != "" && len(req.Content) > 0:
		return fmt.Errorf("blob upload takes content or a URL, not both")
	case rawURL != "":
		obj, err = s.daemon.DownloadBlob(s.ctx, rawURL, strings.TrimSpace(req.CaseNumber), blobstore.ParseCategory(req.Category), blobstore.DownloadOptions{
			FileName:    req.FileName,
			Subcategory: req.Subcategory,
		})
	case len(req.Content) == 0:
		return fmt.Errorf("blob content is empty")
	default:
		obj, err = s.daemon.UploadBlob(s.ctx, blobstore.UploadRequest{
			Content:     req.Content,
			WorkUnit:    strings.TrimSpace(req.CaseNumber),
			Category:    blobstore.ParseCategory(req.Category),
			FileName:    req.FileName,
			Subcategory: req.Subcategory,
			MediaType:   req.MediaType,
		})
	}
	if err != nil {
		return err
	}
	resp.Blob = obj
	s.log().Info("blob uploaded via IPC",
		logging.String(logging.FieldBlobID, obj.ID),
		logging.Bool("duplicate", obj.Duplicate),
		logging.String(logging.FieldEventType, "ipc_blob_upload"))
	return nil
}

func (s *service) BlobGet(req BlobGetRequest, resp *BlobGetResponse) error {
	obj, data, err := s.daemon.ReadBlob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Blob = obj
	resp.Content = data
	return nil
}

func (s *service) BlobLink(req BlobLinkRequest, resp *BlobLinkResponse) error {
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultBlobLinkTTL
	}
	link, err := s.daemon.BlobLink(s.ctx, req.ID, ttl)
	if err != nil {
		return err
	}
	*resp = link
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return err
	}
	resp.Sent = sent
	resp.Message = message
	return nil
}
