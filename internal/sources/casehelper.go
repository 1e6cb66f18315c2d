package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/services"
)

const caseHelperComponent = "casehelper"

// CaseHelper is a cookie-session client for the case management API.
type CaseHelper struct {
	baseURL  string
	username string
	password string
	appType  string
	req      *requester
	logger   *slog.Logger

	mu      sync.Mutex
	cookies []*http.Cookie
}

// NewCaseHelper builds a CaseHelper client. No request is made until first use.
func NewCaseHelper(cfg config.CaseHelper, policy RetryPolicy, logger *slog.Logger) *CaseHelper {
	return &CaseHelper{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		appType:  strings.TrimSpace(cfg.AppType),
		req:      newRequester(caseHelperComponent, cfg.TimeoutSeconds, policy, logger),
		logger:   logging.NewComponentLogger(logger, "source."+caseHelperComponent),
	}
}

// Document is one entry of a case's document store listing. Raw keeps the
// entry verbatim because downloads echo it back.
type Document struct {
	FileName       string
	CaseDocumentID string
	Raw            json.RawMessage
}

func (c *CaseHelper) login(ctx context.Context) ([]*http.Cookie, error) {
	payload, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
		"appType":  c.appType,
	})
	if err != nil {
		return nil, err
	}
	_, header, err := c.req.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/auth/login", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, classify(caseHelperComponent, "login", err)
	}
	cookies := (&http.Response{Header: header}).Cookies()
	c.logger.Debug("casehelper session established", logging.Int("cookies", len(cookies)))
	return cookies, nil
}

func (c *CaseHelper) session(ctx context.Context, refresh bool) ([]*http.Cookie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cookies != nil && !refresh {
		return c.cookies, nil
	}
	cookies, err := c.login(ctx)
	if err != nil {
		c.cookies = nil
		return nil, err
	}
	c.cookies = cookies
	return cookies, nil
}

// call performs an authenticated request, logging in again once when the
// session is rejected.
func (c *CaseHelper) call(ctx context.Context, operation, method, path string, body []byte, accept string) ([]byte, string, error) {
	endpoint := c.baseURL + path
	send := func(cookies []*http.Cookie) ([]byte, error) {
		data, _, err := c.req.do(ctx, func(ctx context.Context) (*http.Request, error) {
			var reader *bytes.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			} else {
				reader = bytes.NewReader(nil)
			}
			req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
			if err != nil {
				return nil, err
			}
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if accept != "" {
				req.Header.Set("Accept", accept)
			}
			for _, cookie := range cookies {
				req.AddCookie(cookie)
			}
			return req, nil
		})
		return data, err
	}

	cookies, err := c.session(ctx, false)
	if err != nil {
		return nil, endpoint, err
	}
	data, err := send(cookies)
	if statusOf(err) == http.StatusUnauthorized {
		logging.WarnWithContext(c.logger, "casehelper session rejected; re-authenticating", "source_reauth",
			logging.String("operation", operation),
			logging.String(logging.FieldErrorHint, "session cookies expired"),
			logging.String(logging.FieldImpact, "request retried once"),
		)
		if cookies, err = c.session(ctx, true); err != nil {
			return nil, endpoint, err
		}
		data, err = send(cookies)
		if statusOf(err) == http.StatusUnauthorized {
			return nil, endpoint, services.Wrap(services.ErrTransientSource, caseHelperComponent, operation,
				"session rejected after re-authentication", classify(caseHelperComponent, operation, err))
		}
	}
	if err != nil {
		return nil, endpoint, classify(caseHelperComponent, operation, err)
	}
	return data, endpoint, nil
}

// HealthCheck forces a fresh login.
func (c *CaseHelper) HealthCheck(ctx context.Context) error {
	_, err := c.session(ctx, true)
	return err
}

// Interview returns the Client for the client interview payload.
func (c *CaseHelper) Interview() Client {
	return &interviewClient{helper: c}
}

// ListDocuments walks a case's document store.
func (c *CaseHelper) ListDocuments(ctx context.Context, caseNumber string) ([]Document, error) {
	data, _, err := c.call(ctx, "list documents", http.MethodGet, "/v2/blobs/"+url.PathEscape(caseNumber)+"/walk", nil, "application/json")
	if err != nil {
		return nil, err
	}
	var listing struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, services.Wrap(services.ErrValidation, caseHelperComponent, "list documents", "decode listing", err)
	}
	docs := make([]Document, 0, len(listing.Data))
	for _, raw := range listing.Data {
		var entry struct {
			FileName       string `json:"file_name"`
			CaseDocumentID any    `json:"case_document_id"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		doc := Document{FileName: strings.TrimSpace(entry.FileName), Raw: raw}
		if entry.CaseDocumentID != nil {
			doc.CaseDocumentID = fmt.Sprint(entry.CaseDocumentID)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DownloadDocument fetches one document's bytes. The service expects the
// listing entry wrapped in its own response envelope.
func (c *CaseHelper) DownloadDocument(ctx context.Context, caseNumber string, doc Document) ([]byte, string, error) {
	body, err := json.Marshal(map[string]any{
		"status": 200,
		"data":   []json.RawMessage{doc.Raw},
	})
	if err != nil {
		return nil, "", err
	}
	return c.call(ctx, "download document", http.MethodPost, "/v2/blobs/"+url.PathEscape(caseNumber)+"/download", body, "application/pdf")
}

type interviewClient struct {
	helper *CaseHelper
}

func (c *interviewClient) Name() string { return "casehelper/interview" }

func (c *interviewClient) Fetch(ctx context.Context, caseNumber string) (Payload, error) {
	caseNumber = strings.TrimSpace(caseNumber)
	if caseNumber == "" {
		return Payload{}, services.Wrap(services.ErrValidation, caseHelperComponent, "fetch interview", "case number is required", nil)
	}
	data, endpoint, err := c.helper.call(ctx, "fetch interview", http.MethodGet, "/api/cases/"+url.PathEscape(caseNumber)+"/interview", nil, "application/json")
	if err != nil {
		return Payload{}, err
	}
	if !json.Valid(data) {
		return Payload{}, services.Wrap(services.ErrValidation, caseHelperComponent, "fetch interview", "response is not JSON", nil)
	}
	return Payload{Body: json.RawMessage(data), APISource: caseHelperComponent, Endpoint: endpoint}, nil
}

func (c *interviewClient) HealthCheck(ctx context.Context) error {
	return c.helper.HealthCheck(ctx)
}
