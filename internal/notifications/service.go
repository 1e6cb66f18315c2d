package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"caseflow/internal/config"
	"caseflow/internal/health"
	"caseflow/internal/logging"
	"caseflow/internal/orchestrator"
)

const userAgent = "Caseflow-Go/0.1.0"

// maxAlertLines bounds the alert list included in one push message.
const maxAlertLines = 8

// Service defines the notification surface used by the pipeline.
type Service interface {
	// PublishHealth pushes a report that carries alerts; clean reports are dropped.
	PublishHealth(ctx context.Context, report health.Report) error
	NotifyRunFailed(ctx context.Context, run orchestrator.Run) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		healthAlerts: cfg.Notifications.HealthAlerts,
		runFailures:  cfg.Notifications.RunFailures,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	healthAlerts bool
	runFailures  bool
}

func (n *ntfyService) PublishHealth(ctx context.Context, report health.Report) error {
	alerts := report.Alerts()
	if !n.healthAlerts || len(alerts) == 0 {
		return nil
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "Pipeline %s: %d alerts", strings.ToLower(string(report.Verdict)), len(alerts))
	for i, alert := range alerts {
		if i == maxAlertLines {
			fmt.Fprintf(&builder, "\n... and %d more", len(alerts)-maxAlertLines)
			break
		}
		fmt.Fprintf(&builder, "\n[%s] %s: %s", alert.Stage, alert.Subject, alert.Message)
	}
	data := payload{
		title:   "Caseflow - Pipeline " + health.Label(string(report.Verdict)),
		message: builder.String(),
		tags:    []string{"caseflow", "health", strings.ToLower(string(report.Verdict))},
	}
	if report.Verdict == health.Degraded {
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, run orchestrator.Run) error {
	if !n.runFailures || run.Status != orchestrator.RunFailed {
		return nil
	}
	subject := run.Key
	if run.CaseNumber != "" {
		subject = "case " + run.CaseNumber
	}
	message := fmt.Sprintf("Run %s for %s failed", run.ID, subject)
	if detail := strings.TrimSpace(run.Error); detail != "" {
		message = fmt.Sprintf("%s\n%s", message, detail)
	}
	data := payload{
		title:    "Caseflow - Run Failed",
		message:  message,
		tags:     []string{"caseflow", string(run.Kind), "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Caseflow - Error",
		message:  builder.String(),
		tags:     []string{"caseflow", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Caseflow - Test",
		message:  "Notification system test",
		tags:     []string{"caseflow", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// RunHook adapts the service to an orchestrator OnFinish callback. Delivery
// happens off the run's goroutine.
func RunHook(svc Service, logger *slog.Logger) func(orchestrator.Run) {
	logger = logging.NewComponentLogger(logger, "notifications")
	return func(run orchestrator.Run) {
		if run.Status != orchestrator.RunFailed || run.Kind != orchestrator.KindIngest {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := svc.NotifyRunFailed(ctx, run); err != nil {
				logging.WarnWithContext(logger, "run failure notification failed", "notification_failed",
					logging.String(logging.FieldRunID, run.ID),
					logging.Error(err),
					logging.String(logging.FieldImpact, "operators were not alerted about this run"),
				)
			}
		}()
	}
}

type noopService struct{}

func (noopService) PublishHealth(context.Context, health.Report) error      { return nil }
func (noopService) NotifyRunFailed(context.Context, orchestrator.Run) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
