package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req any, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call("Caseflow."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartRequest, StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop and exit.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopRequest, StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// CaseAdd registers a work unit without ingesting it.
func (c *Client) CaseAdd(req CaseAddRequest) (*CaseStatusResponse, error) {
	return call[CaseAddRequest, CaseStatusResponse](c, "CaseAdd", req)
}

// CaseIngest triggers ingestion for a case.
func (c *Client) CaseIngest(req CaseIngestRequest) (*CaseIngestResponse, error) {
	return call[CaseIngestRequest, CaseIngestResponse](c, "CaseIngest", req)
}

// CaseStatus reports propagation status for a case.
func (c *Client) CaseStatus(caseNumber string) (*CaseStatusResponse, error) {
	return call[CaseStatusRequest, CaseStatusResponse](c, "CaseStatus", CaseStatusRequest{CaseNumber: caseNumber})
}

// RunShow fetches one run with its unit outcomes.
func (c *Client) RunShow(id string) (*RunShowResponse, error) {
	return call[RunShowRequest, RunShowResponse](c, "RunShow", RunShowRequest{ID: id})
}

// RunList lists recent runs, optionally for one case.
func (c *Client) RunList(req RunListRequest) (*RunListResponse, error) {
	return call[RunListRequest, RunListResponse](c, "RunList", req)
}

// StagingSummary returns per-source processing counts.
func (c *Client) StagingSummary() (*StagingSummaryResponse, error) {
	return call[StagingSummaryRequest, StagingSummaryResponse](c, "StagingSummary", StagingSummaryRequest{})
}

// StagingList lists staged records by case or status.
func (c *Client) StagingList(req StagingListRequest) (*StagingListResponse, error) {
	return call[StagingListRequest, StagingListResponse](c, "StagingList", req)
}

// Replay resets staged records to pending.
func (c *Client) Replay(req ReplayRequest) (*ReplayResponse, error) {
	return call[ReplayRequest, ReplayResponse](c, "Replay", req)
}

// Health returns the latest health report.
func (c *Client) Health() (*HealthResponse, error) {
	return call[HealthRequest, HealthResponse](c, "Health", HealthRequest{})
}

// HealthRun starts a health run.
func (c *Client) HealthRun(wait bool) (*HealthRunResponse, error) {
	return call[HealthRunRequest, HealthRunResponse](c, "HealthRun", HealthRunRequest{Wait: wait})
}

// BlobUpload stores an attachment.
func (c *Client) BlobUpload(req BlobUploadRequest) (*BlobUploadResponse, error) {
	return call[BlobUploadRequest, BlobUploadResponse](c, "BlobUpload", req)
}

// BlobGet reads a blob's metadata and content.
func (c *Client) BlobGet(id string) (*BlobGetResponse, error) {
	return call[BlobGetRequest, BlobGetResponse](c, "BlobGet", BlobGetRequest{ID: id})
}

// BlobLink returns a signed download URL for a blob.
func (c *Client) BlobLink(id string, ttl time.Duration) (*BlobLinkResponse, error) {
	return call[BlobLinkRequest, BlobLinkResponse](c, "BlobLink", BlobLinkRequest{ID: id, TTLSeconds: int(ttl / time.Second)})
}

// TestNotification sends a test notification.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
