package transform

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"caseflow/internal/schema"
	"caseflow/internal/staging"
)

// Computation is a named business function scoped to one case.
type Computation func(ctx context.Context, e *LocalEngine, caseNumber string) (any, error)

// Computation names.
const (
	ComputeTotalMonthlyIncome = "total_monthly_income"
	ComputeDisposableIncome   = "disposable_income"
	ComputeCaseSummary        = "case_summary"
	ComputeSETax              = "se_tax"
	ComputeAccountBalance     = "account_balance"
	ComputeCSEDDate           = "csed_date"
)

const (
	seEarningsFactor = 0.9235
	seTaxRate        = 0.153
	csedYears        = 10
)

func builtinComputations() map[string]Computation {
	return map[string]Computation{
		ComputeTotalMonthlyIncome: totalMonthlyIncome,
		ComputeDisposableIncome:   disposableIncome,
		ComputeCaseSummary:        caseSummary,
		ComputeSETax:              selfEmploymentTax,
		ComputeAccountBalance:     accountBalance,
		ComputeCSEDDate:           csedDate,
	}
}

func unresolved(field string, tried ...string) error {
	return &schema.UnresolvedError{Field: field, Tried: tried}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func numberIn(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func sumMap(raw any) (float64, int) {
	m, _ := raw.(map[string]any)
	total, n := 0.0, 0
	for _, v := range m {
		if f, ok := v.(float64); ok {
			total += f
			n++
		}
	}
	return total, n
}

func totalMonthlyIncome(ctx context.Context, e *LocalEngine, caseNumber string) (any, error) {
	rows, err := e.latestEntities(ctx, caseNumber, EntityMonthlyIncome, staging.SourceInterview)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, unresolved(ComputeTotalMonthlyIncome, EntityMonthlyIncome)
	}
	total, n := sumMap(rows[0].Payload["components"])
	if n == 0 {
		return nil, unresolved(ComputeTotalMonthlyIncome, schema.FieldNames(schema.IncomeFieldPairs())...)
	}
	return round2(total), nil
}

func disposableIncome(ctx context.Context, e *LocalEngine, caseNumber string) (any, error) {
	income, err := totalMonthlyIncome(ctx, e, caseNumber)
	if err != nil {
		return nil, err
	}
	rows, err := e.latestEntities(ctx, caseNumber, EntityHousehold, staging.SourceInterview)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, unresolved("monthly_expenses", EntityHousehold)
	}
	expenses, n := sumMap(rows[0].Payload["expenses"])
	if n == 0 {
		return nil, unresolved("monthly_expenses", schema.FieldNames(schema.ExpenseFieldPairs())...)
	}
	return round2(income.(float64) - expenses), nil
}

// CaseSummary is the case_summary computation result.
type CaseSummary struct {
	CaseNumber      string `json:"case_number"`
	TaxYears        []int  `json:"tax_years"`
	IncomeDocuments int    `json:"income_documents"`
	HasInterview    bool   `json:"has_interview"`
	Silver          int64  `json:"silver"`
	Gold            int64  `json:"gold"`
}

func caseSummary(ctx context.Context, e *LocalEngine, caseNumber string) (any, error) {
	counts, err := e.LayerCounts(ctx, caseNumber)
	if err != nil {
		return nil, err
	}
	if counts.Silver+counts.Gold == 0 {
		return nil, unresolved(ComputeCaseSummary, "derived_records")
	}
	summary := CaseSummary{CaseNumber: caseNumber, Silver: counts.Silver, Gold: counts.Gold}
	years, err := e.latestEntities(ctx, caseNumber, EntityTaxYear, staging.SourceAT)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	for _, row := range years {
		if y, err := strconv.Atoi(row.Key); err == nil && !seen[y] {
			seen[y] = true
			summary.TaxYears = append(summary.TaxYears, y)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(summary.TaxYears)))
	docs, err := e.latestEntities(ctx, caseNumber, EntityIncomeDocument, staging.SourceWI)
	if err != nil {
		return nil, err
	}
	summary.IncomeDocuments = len(docs)
	profile, err := e.latestEntities(ctx, caseNumber, EntityInterviewProfile, staging.SourceInterview)
	if err != nil {
		return nil, err
	}
	summary.HasInterview = len(profile) > 0
	return summary, nil
}

// SETax is the se_tax computation result for the newest return year.
type SETax struct {
	TaxYear  int     `json:"tax_year"`
	Amount   float64 `json:"amount"`
	Computed bool    `json:"computed"`
}

func selfEmploymentTax(ctx context.Context, e *LocalEngine, caseNumber string) (any, error) {
	rows, err := e.latestEntities(ctx, caseNumber, EntityTaxYear, staging.SourceTRT)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key > rows[j].Key })
	for _, row := range rows {
		year, _ := strconv.Atoi(row.Key)
		if tax, ok := numberIn(row.Payload, "se_tax"); ok {
			return SETax{TaxYear: year, Amount: round2(tax)}, nil
		}
		if income, ok := numberIn(row.Payload, "se_income"); ok {
			return SETax{TaxYear: year, Amount: round2(income * seEarningsFactor * seTaxRate), Computed: true}, nil
		}
	}
	return nil, unresolved(ComputeSETax, "se_tax", "se_income")
}

// AccountBalance is the account_balance computation result.
type AccountBalance struct {
	Total  float64            `json:"total"`
	ByYear map[string]float64 `json:"by_year"`
}

func accountBalance(ctx context.Context, e *LocalEngine, caseNumber string) (any, error) {
	rows, err := e.latestEntities(ctx, caseNumber, EntityTaxPosition, staging.SourceAT)
	if err != nil {
		return nil, err
	}
	result := AccountBalance{ByYear: make(map[string]float64)}
	for _, row := range rows {
		if balance, ok := numberIn(row.Payload, "account_balance"); ok {
			result.ByYear[row.Key] = balance
			result.Total += balance
		}
	}
	if len(result.ByYear) == 0 {
		return nil, unresolved(ComputeAccountBalance, "account_balance")
	}
	result.Total = round2(result.Total)
	return result, nil
}

// CSED is the csed_date computation result: collection statute expiration
// per tax year and the earliest of them.
type CSED struct {
	Earliest string            `json:"earliest"`
	ByYear   map[string]string `json:"by_year"`
}

func csedDate(ctx context.Context, e *LocalEngine, caseNumber string) (any, error) {
	rows, err := e.latestEntities(ctx, caseNumber, EntityTaxPosition, staging.SourceAT)
	if err != nil {
		return nil, err
	}
	result := CSED{ByYear: make(map[string]string)}
	var earliest time.Time
	for _, row := range rows {
		raw, _ := row.Payload["assessment_date"].(string)
		assessed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			continue
		}
		expires := assessed.AddDate(csedYears, 0, 0)
		result.ByYear[row.Key] = expires.Format("2006-01-02")
		if earliest.IsZero() || expires.Before(earliest) {
			earliest = expires
		}
	}
	if earliest.IsZero() {
		return nil, unresolved(ComputeCSEDDate, "assessment_date")
	}
	result.Earliest = earliest.Format("2006-01-02")
	return result, nil
}
