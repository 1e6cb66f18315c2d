package staging

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"caseflow/internal/services"
)

// SourceType names the external source a payload came from. The set is open:
// any lowercase identifier is accepted so new sources need no schema change.
type SourceType string

const (
	SourceAT        SourceType = "at"
	SourceWI        SourceType = "wi"
	SourceTRT       SourceType = "trt"
	SourceInterview SourceType = "interview"
)

// BuiltinSources lists the sources wired by the default ingestion graph.
var BuiltinSources = []SourceType{SourceAT, SourceWI, SourceTRT, SourceInterview}

var sourcePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// ParseSourceType normalizes and validates a source name.
func ParseSourceType(value string) (SourceType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if !sourcePattern.MatchString(normalized) {
		return "", services.Wrap(services.ErrValidation, "staging", "parse source", fmt.Sprintf("invalid source type %q", value), nil)
	}
	return SourceType(normalized), nil
}

func (s SourceType) String() string { return string(s) }

// Status is the processing state of a staged record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the transformation engine has finished with the record.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Origin records how a work unit first came to exist.
type Origin string

const (
	// OriginTrigger marks units created by an explicit ingestion trigger.
	OriginTrigger Origin = "trigger"
	// OriginRegistered marks units registered for the sensor to pick up.
	OriginRegistered Origin = "registered"
	// OriginReplay marks units first referenced by a replay request.
	OriginReplay Origin = "replay"
)

// WorkUnit is a case tracked end to end.
type WorkUnit struct {
	ID         int64
	CaseNumber string
	Label      string
	Origin     Origin
	CreatedAt  time.Time
}

// DefaultLabel is the label given to a case when the caller supplies none.
func DefaultLabel(caseNumber string) string {
	return "CASE-" + caseNumber
}

// Provenance describes where a payload was fetched from.
type Provenance struct {
	APISource     string
	APIEndpoint   string
	CreatedBy     string
	SchemaVersion string
}

// Record is one raw payload from one source for one work unit.
type Record struct {
	ID            string
	WorkUnitID    int64
	CaseNumber    string
	SourceType    SourceType
	Payload       json.RawMessage
	APISource     string
	APIEndpoint   string
	CreatedBy     string
	SchemaVersion string
	Status        Status
	Error         string
	InsertedAt    time.Time
	ProcessedAt   *time.Time
}

// SourceSummary aggregates staged records for one source type.
type SourceSummary struct {
	SourceType     SourceType
	Total          int64
	Processed      int64
	Pending        int64
	Failed         int64
	FirstIngestion *time.Time
	LastIngestion  *time.Time
}

// UnitCounts aggregates one work unit's staged records across all sources.
type UnitCounts struct {
	Total     int64
	Pending   int64
	Completed int64
	Failed    int64
}
