package transform

import (
	"context"

	"caseflow/internal/staging"
)

// Layer names a derived tier.
type Layer string

const (
	LayerSilver Layer = "silver"
	LayerGold   Layer = "gold"
)

// Derived entity types.
const (
	EntityTaxYear          = "tax_year"
	EntityIncomeDocument   = "income_document"
	EntityInterviewProfile = "interview_profile"
	EntityTaxPosition      = "tax_position"
	EntityEmployment       = "employment"
	EntityHousehold        = "household"
	EntityMonthlyIncome    = "monthly_income"
)

// Binding ties a derived entity type to the staged source it is built from.
type Binding struct {
	Entity string
	Layer  Layer
	Source staging.SourceType
}

// DefaultBindings lists every entity the local engine derives.
var DefaultBindings = []Binding{
	{Entity: EntityTaxYear, Layer: LayerSilver, Source: staging.SourceAT},
	{Entity: EntityTaxYear, Layer: LayerSilver, Source: staging.SourceTRT},
	{Entity: EntityIncomeDocument, Layer: LayerSilver, Source: staging.SourceWI},
	{Entity: EntityInterviewProfile, Layer: LayerSilver, Source: staging.SourceInterview},
	{Entity: EntityTaxPosition, Layer: LayerGold, Source: staging.SourceAT},
	{Entity: EntityEmployment, Layer: LayerGold, Source: staging.SourceInterview},
	{Entity: EntityHousehold, Layer: LayerGold, Source: staging.SourceInterview},
	{Entity: EntityMonthlyIncome, Layer: LayerGold, Source: staging.SourceInterview},
}

// LayerCounts is a work unit's derived record count per layer.
type LayerCounts struct {
	Silver int64
	Gold   int64
}

// Engine is what the orchestration core requires of the transformation layer.
type Engine interface {
	// Bindings lists the derived entity types and their staged sources.
	Bindings() []Binding
	// PropagationCount counts derived records of entity built from source.
	PropagationCount(ctx context.Context, entity string, source staging.SourceType) (int64, error)
	// LayerCounts counts a work unit's derived records per layer.
	LayerCounts(ctx context.Context, caseNumber string) (LayerCounts, error)
	// SampleWorkUnit picks a case with derived data, reporting false when none exists.
	SampleWorkUnit(ctx context.Context) (string, bool, error)
	// Computations lists the business computation names, sorted.
	Computations() []string
	// Compute runs one computation for a case. Missing inputs yield an error
	// matching schema.ErrUnresolvedField.
	Compute(ctx context.Context, name, caseNumber string) (any, error)
}
