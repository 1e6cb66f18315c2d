package preflight

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"caseflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Required bool   `json:"required"`
	Detail   string `json:"detail"`
}

// Pinger is satisfied by *storage.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes directory, storage and source checks. db may be nil when
// the database could not be opened; the storage check then fails.
func RunAll(ctx context.Context, cfg *config.Config, db Pinger, logger *slog.Logger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		required(CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)),
		required(CheckDirectoryAccess("Log directory", cfg.Paths.LogDir)),
		required(CheckDirectoryAccess("Blob directory", cfg.Paths.BlobDir)),
		required(CheckStorage(ctx, db)),
	}
	return append(results, CheckSources(ctx, SourceChecksFromConfig(cfg, logger))...)
}

// CheckSources runs the source checks concurrently, preserving their order.
func CheckSources(ctx context.Context, checks []SourceCheck) []Result {
	out := make([]Result, len(checks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for i, check := range checks {
		group.Go(func() error {
			out[i] = check.Run(groupCtx)
			return nil
		})
	}
	_ = group.Wait()
	return out
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Required && !r.Passed {
			return true
		}
	}
	return false
}

func required(r Result) Result {
	r.Required = true
	return r
}
