package schema

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"caseflow/internal/services"
	"caseflow/internal/staging"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

const schemaBaseURL = "https://caseflow.invalid/schemas/"

// Version is one declared payload shape of a source.
type Version struct {
	Name     string
	File     string
	Fields   []FieldSpec
	Children map[string]ChildSpec
	// elements splits a validated payload into entities.
	elements   func(root any) []rawElement
	fieldIndex map[string]FieldSpec
	compiled   *jsonschema.Schema
}

// Registry holds the compiled versions per source.
type Registry struct {
	versions map[staging.SourceType][]*Version
}

// NewRegistry compiles the built-in source versions.
func NewRegistry() (*Registry, error) {
	compiler := jsonschema.NewCompiler()
	registry := &Registry{versions: make(map[staging.SourceType][]*Version)}
	for source, versions := range builtinVersions() {
		for _, v := range versions {
			raw, err := schemaFiles.ReadFile("schemas/" + v.File)
			if err != nil {
				return nil, fmt.Errorf("schema: read %s: %w", v.File, err)
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				return nil, fmt.Errorf("schema: parse %s: %w", v.File, err)
			}
			url := schemaBaseURL + v.File
			if err := compiler.AddResource(url, doc); err != nil {
				return nil, fmt.Errorf("schema: add %s: %w", v.File, err)
			}
			compiled, err := compiler.Compile(url)
			if err != nil {
				return nil, fmt.Errorf("schema: compile %s: %w", v.File, err)
			}
			v.compiled = compiled
			v.fieldIndex = indexFields(v.Fields)
		}
		// Newest first so detection prefers the current layout.
		sort.SliceStable(versions, func(i, j int) bool { return versions[i].Name > versions[j].Name })
		registry.versions[source] = versions
	}
	return registry, nil
}

// MustRegistry is NewRegistry for package-level wiring and tests.
func MustRegistry() *Registry {
	registry, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return registry
}

// Sources lists the source types with declared versions.
func (r *Registry) Sources() []staging.SourceType {
	out := make([]staging.SourceType, 0, len(r.versions))
	for source := range r.versions {
		out = append(out, source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Versions lists a source's version names, newest first.
func (r *Registry) Versions(source staging.SourceType) []string {
	names := make([]string, 0, len(r.versions[source]))
	for _, v := range r.versions[source] {
		names = append(names, v.Name)
	}
	return names
}

// Detect binds a payload to the newest version of its source that validates it.
func (r *Registry) Detect(source staging.SourceType, payload []byte) (*Document, error) {
	versions, ok := r.versions[source]
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "schema", "detect", fmt.Sprintf("no schema declared for source %q", source), nil)
	}
	root, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "schema", "detect", "payload is not JSON", err)
	}
	var reasons []string
	for _, v := range versions {
		if err := v.compiled.Validate(root); err != nil {
			reasons = append(reasons, v.Name+": "+firstLine(err.Error()))
			continue
		}
		return &Document{Source: source, Version: v.Name, root: root, version: v}, nil
	}
	return nil, services.Wrap(services.ErrValidation, "schema", "detect",
		fmt.Sprintf("%s payload matches no known version (%s)", source, strings.Join(reasons, "; ")), nil)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func listAt(root any, paths ...string) []rawElement {
	for _, path := range paths {
		raw, found := walk(root, path)
		list, ok := raw.([]any)
		if !found || !ok {
			continue
		}
		out := make([]rawElement, 0, len(list))
		for _, item := range list {
			if _, isMap := item.(map[string]any); isMap {
				out = append(out, rawElement{data: item})
			}
		}
		return out
	}
	return nil
}

var transcriptTransactions = ChildSpec{
	Paths: []string{"transactions"},
	Fields: []FieldSpec{
		{Name: "code", Paths: []string{"code", "transaction_code"}},
		{Name: "date", Paths: []string{"date", "activity_date"}},
		{Name: "description", Paths: []string{"description", "explanation"}},
		{Name: "amount", Paths: []string{"amount"}},
	},
}

var accountTranscriptFields = []FieldSpec{
	{Name: "tax_year", Paths: []string{"tax_year", "year", "period"}},
	{Name: "return_filed", Paths: []string{"return_filed"}},
	{Name: "filing_status", Paths: []string{"filing_status"}},
	{Name: "agi", Paths: []string{"adjusted_gross_income", "agi"}},
	{Name: "taxable_income", Paths: []string{"taxable_income"}},
	{Name: "tax_liability", Paths: []string{"tax_per_return"}},
	{Name: "account_balance", Paths: []string{"total_balance", "account_balance"}},
	{Name: "assessment_date", Paths: []string{"assessment_date", "assessed_date"}},
}

func builtinVersions() map[staging.SourceType][]*Version {
	return map[staging.SourceType][]*Version{
		staging.SourceAT: {
			{
				Name:     "v1",
				File:     "at_v1.json",
				Fields:   accountTranscriptFields,
				Children: map[string]ChildSpec{"transactions": transcriptTransactions},
				elements: func(root any) []rawElement { return listAt(root, "at_records") },
			},
			{
				Name:     "v2",
				File:     "at_v2.json",
				Fields:   accountTranscriptFields,
				Children: map[string]ChildSpec{"transactions": transcriptTransactions},
				elements: func(root any) []rawElement { return listAt(root, "records") },
			},
		},
		staging.SourceWI: {
			{
				Name: "v1",
				File: "wi_v1.json",
				Fields: []FieldSpec{
					{Name: "tax_year", Paths: []string{"tax_year", "year"}},
					{Name: "form_type", Paths: []string{"form_type", "document_type", "type"}},
					{Name: "gross_amount", Paths: []string{"gross_amount", "gross", "income"}},
					{Name: "withholding", Paths: []string{"federal_withholding", "federal", "withholding"}},
					{Name: "issuer_name", Paths: []string{"issuer_name", "employer_name"}},
					{Name: "issuer_ein", Paths: []string{"issuer_ein", "ein"}},
					{Name: "recipient_name", Paths: []string{"recipient_name"}},
				},
				elements: func(root any) []rawElement { return listAt(root, "forms", "data") },
			},
			{
				Name: "v2",
				File: "wi_v2.json",
				Fields: []FieldSpec{
					{Name: "tax_year", Paths: []string{"@year"}},
					{Name: "form_type", Paths: []string{"Form.Type", "Form.Code", "Form.type", "Form.code", "Form"}},
					{Name: "gross_amount", Paths: []string{"Income", "Fields.Income", "Fields.Wages"}},
					{Name: "withholding", Paths: []string{"Withholding", "Fields.Withholding", "Fields.FederalWithholding"}},
					{Name: "issuer_name", Paths: []string{"Issuer.Name", "Employer.Name", "Fields.PayerName", "Fields.EmployerName", "Fields.payer_name"}},
					{Name: "issuer_ein", Paths: []string{"Issuer.EIN", "Employer.EIN", "Fields.PayerEIN", "Fields.EmployerEIN", "Fields.ein"}},
					{Name: "recipient_name", Paths: []string{"Recipient.Name", "Employee.Name", "Fields.RecipientName", "Fields.EmployeeName", "Fields.recipient_name"}},
				},
				elements: yearsDataElements,
			},
		},
		staging.SourceTRT: {
			{
				Name: "v1",
				File: "trt_v1.json",
				Fields: []FieldSpec{
					{Name: "tax_year", Paths: []string{"tax_year", "year"}},
					{Name: "filing_status", Paths: []string{"filing_status"}},
					{Name: "agi", Paths: []string{"adjusted_gross_income", "agi"}},
					{Name: "taxable_income", Paths: []string{"taxable_income"}},
					{Name: "total_tax", Paths: []string{"total_tax", "tax_per_return"}},
					{Name: "se_income", Paths: []string{"self_employment_income", "se_income", "schedule_c_net_profit"}},
					{Name: "se_tax", Paths: []string{"self_employment_tax", "se_tax"}},
				},
				elements: func(root any) []rawElement { return listAt(root, "records") },
			},
		},
		staging.SourceInterview: {
			{
				Name:     "v1",
				File:     "interview_v1.json",
				Fields:   interviewFields(),
				elements: func(root any) []rawElement { return []rawElement{{data: root}} },
			},
		},
	}
}

// yearsDataElements flattens {"years_data": {"2021": {"forms": [...]}}} and
// {"years_data": {"2021": [...]}} into forms carrying their year as context.
func yearsDataElements(root any) []rawElement {
	raw, _ := walk(root, "years_data")
	years, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(years))
	for key := range years {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var out []rawElement
	for _, year := range keys {
		var forms []any
		switch v := years[year].(type) {
		case []any:
			forms = v
		case map[string]any:
			forms, _ = v["forms"].([]any)
		}
		for _, form := range forms {
			if _, isMap := form.(map[string]any); isMap {
				out = append(out, rawElement{data: form, context: map[string]string{"year": year}})
			}
		}
	}
	return out
}

func interviewFields() []FieldSpec {
	section := func(prefix string, pairs ...string) []FieldSpec {
		specs := make([]FieldSpec, 0, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			specs = append(specs, FieldSpec{Name: pairs[i], Paths: []string{prefix + "." + pairs[i+1]}})
		}
		return specs
	}
	var fields []FieldSpec
	fields = append(fields, section("employment",
		"client_employer", "clientEmployer",
		"client_start_date", "clientStartWorkingDate",
		"client_gross_income", "clientGrossIncome",
		"client_net_income", "clientNetIncome",
		"client_pay_frequency", "clientFrequentlyPaid",
		"client_monthly_income", "clientMonthlyIncome",
		"spouse_employer", "spouseEmployer",
		"spouse_start_date", "spouseStartWorkingDate",
		"spouse_gross_income", "spouseGrossIncome",
		"spouse_net_income", "spouseNetIncome",
		"spouse_pay_frequency", "spouseFrequentlyPaid",
		"spouse_monthly_income", "spouseMonthlyIncome",
	)...)
	fields = append(fields, section("household",
		"household_members", "clientHouseMembers",
		"members_under_65", "under65",
		"members_over_65", "over65",
		"state", "state",
		"county", "county",
	)...)
	fields = append(fields, section("income", IncomeFieldPairs()...)...)
	fields = append(fields, section("expenses", ExpenseFieldPairs()...)...)
	return fields
}

// IncomeFieldPairs lists monthly income fields as name, source-key pairs.
func IncomeFieldPairs() []string {
	return []string{
		"client_wages", "clientWages",
		"client_social_security", "clientSocialSecurity",
		"client_pension", "clientPension",
		"spouse_wages", "spouseWages",
		"spouse_social_security", "spouseSocialSecurity",
		"spouse_pension", "spousePension",
		"dividends_interest", "dividendsInterest",
		"rental_net", "rentalGross",
		"distributions", "distributions",
		"alimony", "alimony",
		"child_support", "childSupport",
		"other_income", "otherIncome",
	}
}

// ExpenseFieldPairs lists monthly expense fields as name, source-key pairs.
func ExpenseFieldPairs() []string {
	return []string{
		"food", "food",
		"housekeeping", "housekeeping",
		"apparel", "apparel",
		"personal_care", "personalCare",
		"misc", "misc",
		"mortgage", "mortgageLien1",
		"rent", "rent",
		"home_insurance", "insurance",
		"property_tax", "propertyTax",
		"gas", "gas",
		"electricity", "electricity",
		"water", "water",
		"phone", "phone",
		"health_insurance", "healthInsurance",
		"prescriptions", "prescriptions",
		"taxes", "taxes",
		"court_payments", "courtPayments",
		"child_care", "childCare",
		"transportation", "transportation",
		"auto_insurance", "autoInsurance",
		"auto_payment_1", "autoPayment1",
		"auto_payment_2", "autoPayment2",
	}
}

// FieldNames returns every other entry of a name, key pair list.
func FieldNames(pairs []string) []string {
	names := make([]string, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		names = append(names, pairs[i])
	}
	return names
}
