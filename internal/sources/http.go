package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/services"
)

const maxErrorBody = 512

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// RetryPolicyFromConfig converts the configured retry section.
func RetryPolicyFromConfig(cfg config.Retry) RetryPolicy {
	return RetryPolicy{
		Attempts:  cfg.Attempts,
		BaseDelay: time.Duration(cfg.BaseBackoffMillis) * time.Millisecond,
		MaxDelay:  time.Duration(cfg.MaxBackoffMillis) * time.Millisecond,
	}
}

func (p RetryPolicy) attempts() int {
	if p.Attempts <= 0 {
		return 1
	}
	return p.Attempts
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}
	delay := base << (attempt - 1)
	if delay <= 0 || delay > maxDelay {
		delay = maxDelay
	}
	// Up to 20% jitter keeps concurrent assets from retrying in lockstep.
	if jitter := int64(delay) / 5; jitter > 0 {
		delay += time.Duration(rand.Int64N(jitter))
	}
	return delay
}

type statusError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// requester sends requests with retry. build is called once per attempt so
// request bodies are fresh.
type requester struct {
	name   string
	client *http.Client
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRequester(name string, timeoutSeconds int, policy RetryPolicy, logger *slog.Logger) *requester {
	timeout := 120 * time.Second
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &requester{
		name:   name,
		client: &http.Client{Timeout: timeout},
		policy: policy,
		logger: logging.NewComponentLogger(logger, "source."+name),
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// do returns the body of the first 2xx response. Non-2xx responses come back
// as *statusError once retries are exhausted or the status is not retryable.
func (r *requester) do(ctx context.Context, build func(context.Context) (*http.Request, error)) ([]byte, http.Header, error) {
	attempts := r.policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, header, err := r.once(ctx, build)
		if err == nil {
			return body, header, nil
		}
		lastErr = err
		delay, retry := r.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return nil, nil, err
		}
		r.logger.Debug("retrying source request",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (r *requester) once(ctx context.Context, build func(context.Context) (*http.Request, error)) ([]byte, http.Header, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, resp.Header, &statusError{Status: resp.StatusCode, Body: snippet, RetryAfter: retryAfter}
	}
	return body, resp.Header, nil
}

func (r *requester) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var status *statusError
	if errors.As(err, &status) {
		switch {
		case status.Status == http.StatusTooManyRequests,
			status.Status == http.StatusRequestTimeout,
			status.Status >= http.StatusInternalServerError:
			if status.RetryAfter > 0 {
				return min(status.RetryAfter, r.policy.backoff(maxAttempts)), true
			}
			return r.policy.backoff(attempt), true
		default:
			return 0, false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return r.policy.backoff(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return r.policy.backoff(attempt), true
	}
	return 0, false
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// classify maps a request failure onto the service error taxonomy.
func classify(component, operation string, err error) error {
	if err == nil {
		return nil
	}
	var status *statusError
	if errors.As(err, &status) {
		switch {
		case status.Status == http.StatusUnauthorized || status.Status == http.StatusForbidden:
			return services.Wrap(services.ErrAuthExpired, component, operation,
				fmt.Sprintf("authentication failed (%d)", status.Status), err)
		case status.Status == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, component, operation, "", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, component, operation, "", err)
	}
	return services.Wrap(services.ErrTransientSource, component, operation, "", err)
}

func statusOf(err error) int {
	var status *statusError
	if errors.As(err, &status) {
		return status.Status
	}
	return 0
}
