package preflight

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"caseflow/internal/config"
	"caseflow/internal/sources"
)

// HealthChecker is implemented by the source API clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SourceCheck checks one source API.
type SourceCheck struct {
	Name string
	// Serves lists the source types the API feeds.
	Serves   []string
	Required bool
	// Checker is nil when the API has no URL configured.
	Checker HealthChecker
	Timeout time.Duration
}

// Run executes the check with a single attempt.
func (c SourceCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name, Required: c.Required}
	served := strings.Join(c.Serves, ", ")
	if c.Checker == nil {
		result.Passed = !c.Required
		result.Detail = "not configured (" + served + ")"
		return result
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Checker.HealthCheck(checkCtx); err != nil {
		result.Detail = summarizeError(err)
		return result
	}
	result.Passed = true
	result.Detail = "reachable (" + served + ")"
	return result
}

// SourceChecksFromConfig builds checks for the TiParser and CaseHelper APIs.
// Health checks use a single attempt so preflight never waits on backoff.
func SourceChecksFromConfig(cfg *config.Config, logger *slog.Logger) []SourceCheck {
	policy := sources.RetryPolicyFromConfig(cfg.Sources.Retry)
	policy.Attempts = 1

	tiServes := []string{"at", "wi", "trt"}
	ti := SourceCheck{Name: "TiParser", Serves: tiServes, Required: anyRequired(cfg, tiServes...)}
	if strings.TrimSpace(cfg.Sources.TiParser.URL) != "" {
		ti.Checker = sources.NewTiParser(cfg.Sources.TiParser, policy, logger)
	}

	chServes := []string{"interview"}
	if cfg.Ingestion.Documents {
		chServes = append(chServes, "documents")
	}
	ch := SourceCheck{Name: "CaseHelper", Serves: chServes, Required: anyRequired(cfg, chServes...)}
	if strings.TrimSpace(cfg.Sources.CaseHelper.URL) != "" {
		ch.Checker = sources.NewCaseHelper(cfg.Sources.CaseHelper, policy, logger)
	}
	return []SourceCheck{ti, ch}
}

func anyRequired(cfg *config.Config, names ...string) bool {
	for _, name := range names {
		if cfg.IsRequired(name) {
			return true
		}
	}
	return false
}
