package replay

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"caseflow/internal/logging"
	"caseflow/internal/staging"
)

// Store is the staging surface replay needs.
type Store interface {
	Replay(ctx context.Context, source staging.SourceType, sel staging.Selector) (int64, error)
	ProcessingSummary(ctx context.Context) ([]staging.SourceSummary, error)
	EnsureWorkUnit(ctx context.Context, caseNumber, label string, origin staging.Origin) (staging.WorkUnit, error)
}

// Request selects records to replay. Exactly one of RecordID, CaseNumber
// or Failed must be set. An empty Source replays across every source type.
type Request struct {
	Source     string `json:"source,omitempty"`
	RecordID   string `json:"record_id,omitempty"`
	CaseNumber string `json:"case_number,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
}

func (r Request) selector() staging.Selector {
	switch {
	case strings.TrimSpace(r.RecordID) != "" && strings.TrimSpace(r.CaseNumber) == "" && !r.Failed:
		return staging.ByID(r.RecordID)
	case strings.TrimSpace(r.CaseNumber) != "" && strings.TrimSpace(r.RecordID) == "" && !r.Failed:
		return staging.ForWorkUnit(r.CaseNumber)
	case r.Failed && strings.TrimSpace(r.RecordID) == "" && strings.TrimSpace(r.CaseNumber) == "":
		return staging.AllFailed()
	default:
		return staging.Selector{}
	}
}

// Result reports how many records were reset per source.
type Result struct {
	Selector string                       `json:"selector"`
	Affected map[staging.SourceType]int64 `json:"affected"`
	Total    int64                        `json:"total"`
}

// Controller resets staged records to pending.
type Controller struct {
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	observer func(Result)
}

// New constructs a controller.
func New(store Store, logger *slog.Logger) *Controller {
	return &Controller{store: store, logger: logging.NewComponentLogger(logger, "replay")}
}

// SetObserver registers a callback invoked after every successful replay.
func (c *Controller) SetObserver(fn func(Result)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

// Replay resets the selected records. A case selector creates the work unit
// when it has never been referenced.
func (c *Controller) Replay(ctx context.Context, req Request) (Result, error) {
	sel := req.selector()
	if err := sel.Validate(); err != nil {
		return Result{}, err
	}
	sources, err := c.sources(ctx, req.Source)
	if err != nil {
		return Result{}, err
	}
	if sel.WorkUnit != "" {
		if _, err := c.store.EnsureWorkUnit(ctx, sel.WorkUnit, "", staging.OriginReplay); err != nil {
			return Result{}, err
		}
	}

	result := Result{Selector: sel.String(), Affected: make(map[staging.SourceType]int64, len(sources))}
	for _, source := range sources {
		n, err := c.store.Replay(ctx, source, sel)
		if err != nil {
			return result, err
		}
		if n > 0 {
			result.Affected[source] = n
			result.Total += n
		}
	}

	attrs := []logging.Attr{
		logging.String("selector", result.Selector),
		logging.Int64("affected", result.Total),
		logging.String(logging.FieldEventType, "replay_requested"),
	}
	if req.Source != "" {
		attrs = append(attrs, logging.String(logging.FieldSourceType, req.Source))
	}
	if sel.WorkUnit != "" {
		attrs = append(attrs, logging.String(logging.FieldCaseID, sel.WorkUnit))
	}
	c.logger.Info("replay applied", logging.Args(attrs...)...)

	c.mu.Lock()
	observer := c.observer
	c.mu.Unlock()
	if observer != nil {
		observer(result)
	}
	return result, nil
}

func (c *Controller) sources(ctx context.Context, raw string) ([]staging.SourceType, error) {
	if strings.TrimSpace(raw) != "" {
		source, err := staging.ParseSourceType(raw)
		if err != nil {
			return nil, err
		}
		return []staging.SourceType{source}, nil
	}
	seen := make(map[staging.SourceType]struct{})
	for _, source := range staging.BuiltinSources {
		seen[source] = struct{}{}
	}
	summaries, err := c.store.ProcessingSummary(ctx)
	if err != nil {
		return nil, err
	}
	for _, summary := range summaries {
		seen[summary.SourceType] = struct{}{}
	}
	out := make([]staging.SourceType, 0, len(seen))
	for source := range seen {
		out = append(out, source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
