package sources

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"caseflow/internal/config"
	"caseflow/internal/staging"
)

// Payload is a fetched document plus where it came from.
type Payload struct {
	Body      json.RawMessage
	APISource string
	Endpoint  string
}

// Client fetches one source's payload for a case.
type Client interface {
	Name() string
	Fetch(ctx context.Context, caseNumber string) (Payload, error)
	// HealthCheck returns nil when the source is reachable and accepts our credentials.
	HealthCheck(ctx context.Context) error
}

// Registry maps source types to their clients.
type Registry struct {
	clients map[staging.SourceType]Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[staging.SourceType]Client)}
}

// Register binds a client to a source type, replacing any previous binding.
func (r *Registry) Register(source staging.SourceType, client Client) {
	r.clients[source] = client
}

// Client returns the client for a source type.
func (r *Registry) Client(source staging.SourceType) (Client, bool) {
	client, ok := r.clients[source]
	return client, ok
}

// Sources lists registered source types in name order.
func (r *Registry) Sources() []staging.SourceType {
	out := make([]staging.SourceType, 0, len(r.clients))
	for source := range r.clients {
		out = append(out, source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewRegistryFromConfig wires the TiParser transcript analyses and the
// CaseHelper interview into a registry. The CaseHelper session is returned as
// well so document ingestion can share it.
func NewRegistryFromConfig(cfg *config.Config, logger *slog.Logger) (*Registry, *CaseHelper) {
	retry := RetryPolicyFromConfig(cfg.Sources.Retry)
	tiparser := NewTiParser(cfg.Sources.TiParser, retry, logger)
	casehelper := NewCaseHelper(cfg.Sources.CaseHelper, retry, logger)

	registry := NewRegistry()
	registry.Register(staging.SourceAT, tiparser.Analysis(staging.SourceAT))
	registry.Register(staging.SourceWI, tiparser.Analysis(staging.SourceWI))
	registry.Register(staging.SourceTRT, tiparser.Analysis(staging.SourceTRT))
	registry.Register(staging.SourceInterview, casehelper.Interview())
	return registry, casehelper
}
