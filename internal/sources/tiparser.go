package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"caseflow/internal/config"
	"caseflow/internal/services"
	"caseflow/internal/staging"
)

// TiParser talks to the transcript analysis API.
type TiParser struct {
	baseURL string
	apiKey  string
	req     *requester
}

// NewTiParser builds a TiParser client.
func NewTiParser(cfg config.TiParser, policy RetryPolicy, logger *slog.Logger) *TiParser {
	return &TiParser{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		req:     newRequester("tiparser", cfg.TimeoutSeconds, policy, logger),
	}
}

// Analysis returns the Client for one transcript analysis (at, wi or trt).
func (t *TiParser) Analysis(source staging.SourceType) Client {
	return &analysisClient{parser: t, source: source}
}

func (t *TiParser) request(method, endpoint string) func(context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		var body *bytes.Reader
		if method == http.MethodPost {
			body = bytes.NewReader([]byte("{}"))
		} else {
			body = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-api-key", t.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}
}

// HealthCheck calls /health.
func (t *TiParser) HealthCheck(ctx context.Context) error {
	_, _, err := t.req.once(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
		req.Header.Set("x-api-key", t.apiKey)
		return req, nil
	})
	if err != nil {
		return classify("tiparser", "health", err)
	}
	return nil
}

type analysisClient struct {
	parser *TiParser
	source staging.SourceType
}

func (c *analysisClient) Name() string { return "tiparser/" + string(c.source) }

// Fetch tries GET first; endpoints that only accept POST answer 405 and are
// retried with an empty JSON body.
func (c *analysisClient) Fetch(ctx context.Context, caseNumber string) (Payload, error) {
	operation := "fetch " + string(c.source)
	caseNumber = strings.TrimSpace(caseNumber)
	if caseNumber == "" {
		return Payload{}, services.Wrap(services.ErrValidation, "tiparser", operation, "case number is required", nil)
	}
	endpoint := c.parser.baseURL + "/analysis/" + url.PathEscape(string(c.source)) + "/" + url.PathEscape(caseNumber)

	body, _, err := c.parser.req.do(ctx, c.parser.request(http.MethodGet, endpoint))
	if statusOf(err) == http.StatusMethodNotAllowed {
		body, _, err = c.parser.req.do(ctx, c.parser.request(http.MethodPost, endpoint))
	}
	if err != nil {
		return Payload{}, classify("tiparser", operation, err)
	}
	if !json.Valid(body) {
		return Payload{}, services.Wrap(services.ErrValidation, "tiparser", operation, "response is not JSON", nil)
	}
	return Payload{Body: json.RawMessage(body), APISource: "tiparser", Endpoint: endpoint}, nil
}

func (c *analysisClient) HealthCheck(ctx context.Context) error {
	return c.parser.HealthCheck(ctx)
}
