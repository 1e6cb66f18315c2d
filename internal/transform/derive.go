package transform

import (
	"fmt"
	"strconv"
	"time"

	"caseflow/internal/schema"
	"caseflow/internal/staging"
)

// Entity is one derived record ready to be written.
type Entity struct {
	Type    string
	Layer   Layer
	Key     string
	Payload map[string]any
}

type fieldKind int

const (
	kindText fieldKind = iota
	kindNumber
	kindYear
	kindDate
	kindFlag
)

type fieldDef struct {
	name string
	kind fieldKind
}

func extract(el schema.Element, defs []fieldDef) (map[string]any, error) {
	out := make(map[string]any, len(defs)+1)
	var unresolved []string
	for _, def := range defs {
		value := el.Field(def.name)
		if !value.Resolved {
			unresolved = append(unresolved, def.name)
			continue
		}
		var (
			v   any
			err error
		)
		switch def.kind {
		case kindNumber:
			v, err = value.Number()
		case kindYear:
			v, err = value.Year()
		case kindFlag:
			v, err = value.Bool()
		case kindDate:
			var t time.Time
			t, err = value.Date()
			if err == nil {
				v = t.Format("2006-01-02")
			}
		default:
			v, err = value.String()
		}
		if err != nil {
			return nil, err
		}
		out[def.name] = v
	}
	if len(unresolved) > 0 {
		out["unresolved"] = unresolved
	}
	return out, nil
}

func numberMap(el schema.Element, names []string) (map[string]float64, []string, error) {
	values := make(map[string]float64, len(names))
	var unresolved []string
	for _, name := range names {
		value := el.Field(name)
		if !value.Resolved {
			unresolved = append(unresolved, name)
			continue
		}
		n, err := value.Number()
		if err != nil {
			return nil, nil, err
		}
		values[name] = n
	}
	return values, unresolved, nil
}

var (
	accountFields = []fieldDef{
		{"tax_year", kindYear},
		{"return_filed", kindFlag},
		{"filing_status", kindText},
		{"agi", kindNumber},
		{"taxable_income", kindNumber},
		{"tax_liability", kindNumber},
		{"account_balance", kindNumber},
		{"assessment_date", kindDate},
	}
	transactionFields = []fieldDef{
		{"code", kindText},
		{"date", kindDate},
		{"description", kindText},
		{"amount", kindNumber},
	}
	incomeDocumentFields = []fieldDef{
		{"tax_year", kindYear},
		{"form_type", kindText},
		{"gross_amount", kindNumber},
		{"withholding", kindNumber},
		{"issuer_name", kindText},
		{"issuer_ein", kindText},
		{"recipient_name", kindText},
	}
	returnFields = []fieldDef{
		{"tax_year", kindYear},
		{"filing_status", kindText},
		{"agi", kindNumber},
		{"taxable_income", kindNumber},
		{"total_tax", kindNumber},
		{"se_income", kindNumber},
		{"se_tax", kindNumber},
	}
	employmentFields = []fieldDef{
		{"client_employer", kindText},
		{"client_start_date", kindDate},
		{"client_gross_income", kindNumber},
		{"client_net_income", kindNumber},
		{"client_pay_frequency", kindText},
		{"client_monthly_income", kindNumber},
		{"spouse_employer", kindText},
		{"spouse_start_date", kindDate},
		{"spouse_gross_income", kindNumber},
		{"spouse_net_income", kindNumber},
		{"spouse_pay_frequency", kindText},
		{"spouse_monthly_income", kindNumber},
	}
	householdFields = []fieldDef{
		{"household_members", kindNumber},
		{"members_under_65", kindNumber},
		{"members_over_65", kindNumber},
		{"state", kindText},
		{"county", kindText},
	}
)

// Derive maps a schema-bound payload onto derived entities. A repeated
// entity without a resolvable tax year cannot be keyed and fails the payload.
func Derive(doc *schema.Document) ([]Entity, error) {
	switch doc.Source {
	case staging.SourceAT:
		return deriveAccount(doc)
	case staging.SourceWI:
		return deriveIncomeDocuments(doc)
	case staging.SourceTRT:
		return deriveReturns(doc)
	case staging.SourceInterview:
		return deriveInterview(doc)
	}
	return nil, fmt.Errorf("no derivation for source %q", doc.Source)
}

func requireYear(el schema.Element, index int) (int, error) {
	year, err := el.Field("tax_year").Year()
	if err != nil {
		return 0, fmt.Errorf("element %d: %w", index, err)
	}
	return year, nil
}

func deriveAccount(doc *schema.Document) ([]Entity, error) {
	var entities []Entity
	for i, el := range doc.Elements() {
		year, err := requireYear(el, i)
		if err != nil {
			return nil, err
		}
		payload, err := extract(el, accountFields)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		var transactions []map[string]any
		assessed := ""
		for j, child := range el.Children("transactions") {
			tx, err := extract(child, transactionFields)
			if err != nil {
				return nil, fmt.Errorf("element %d transaction %d: %w", i, j, err)
			}
			if code, _ := tx["code"].(string); code == "150" && assessed == "" {
				assessed, _ = tx["date"].(string)
			}
			transactions = append(transactions, tx)
		}
		payload["transactions"] = transactions
		payload["schema_version"] = doc.Version
		key := strconv.Itoa(year)
		entities = append(entities, Entity{Type: EntityTaxYear, Layer: LayerSilver, Key: key, Payload: payload})

		position := map[string]any{"tax_year": year}
		var unresolved []string
		for _, name := range []string{"account_balance", "tax_liability"} {
			if v, ok := payload[name]; ok {
				position[name] = v
			} else {
				unresolved = append(unresolved, name)
			}
		}
		if v, ok := payload["assessment_date"]; ok {
			position["assessment_date"] = v
		} else if assessed != "" {
			position["assessment_date"] = assessed
		} else {
			unresolved = append(unresolved, "assessment_date")
		}
		if len(unresolved) > 0 {
			position["unresolved"] = unresolved
		}
		entities = append(entities, Entity{Type: EntityTaxPosition, Layer: LayerGold, Key: key, Payload: position})
	}
	return entities, nil
}

func deriveIncomeDocuments(doc *schema.Document) ([]Entity, error) {
	var entities []Entity
	for i, el := range doc.Elements() {
		year, err := requireYear(el, i)
		if err != nil {
			return nil, err
		}
		payload, err := extract(el, incomeDocumentFields)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		payload["schema_version"] = doc.Version
		form, _ := payload["form_type"].(string)
		if form == "" {
			form = "unknown"
		}
		key := fmt.Sprintf("%d/%s/%d", year, form, i)
		entities = append(entities, Entity{Type: EntityIncomeDocument, Layer: LayerSilver, Key: key, Payload: payload})
	}
	return entities, nil
}

func deriveReturns(doc *schema.Document) ([]Entity, error) {
	var entities []Entity
	for i, el := range doc.Elements() {
		year, err := requireYear(el, i)
		if err != nil {
			return nil, err
		}
		payload, err := extract(el, returnFields)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		payload["schema_version"] = doc.Version
		entities = append(entities, Entity{Type: EntityTaxYear, Layer: LayerSilver, Key: strconv.Itoa(year), Payload: payload})
	}
	return entities, nil
}

func deriveInterview(doc *schema.Document) ([]Entity, error) {
	elements := doc.Elements()
	if len(elements) == 0 {
		return nil, nil
	}
	root := elements[0]

	employment, err := extract(root, employmentFields)
	if err != nil {
		return nil, err
	}
	household, err := extract(root, householdFields)
	if err != nil {
		return nil, err
	}
	expenses, expensesMissing, err := numberMap(root, schema.FieldNames(schema.ExpenseFieldPairs()))
	if err != nil {
		return nil, err
	}
	household["expenses"] = expenses
	household["expenses_unresolved"] = expensesMissing
	income, incomeMissing, err := numberMap(root, schema.FieldNames(schema.IncomeFieldPairs()))
	if err != nil {
		return nil, err
	}
	monthly := map[string]any{"components": income, "unresolved": incomeMissing}

	profile := map[string]any{
		"schema_version": doc.Version,
		"employment":     employment,
		"household":      household,
		"income":         income,
	}
	return []Entity{
		{Type: EntityInterviewProfile, Layer: LayerSilver, Key: "profile", Payload: profile},
		{Type: EntityEmployment, Layer: LayerGold, Key: "employment", Payload: employment},
		{Type: EntityHousehold, Layer: LayerGold, Key: "household", Payload: household},
		{Type: EntityMonthlyIncome, Layer: LayerGold, Key: "monthly_income", Payload: monthly},
	}, nil
}
