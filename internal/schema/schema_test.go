package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/services"
	"caseflow/internal/staging"
)

func TestDetectPicksMatchingVersion(t *testing.T) {
	registry := MustRegistry()
	cases := []struct {
		name    string
		source  staging.SourceType
		payload string
		version string
	}{
		{"at records layout", staging.SourceAT, `{"records":[{"tax_year":"2021"}],"metadata":{}}`, "v2"},
		{"at legacy layout", staging.SourceAT, `{"at_records":[{"year":2020}]}`, "v1"},
		{"wi flat forms", staging.SourceWI, `{"forms":[{"form_type":"W-2"}]}`, "v1"},
		{"wi per-year", staging.SourceWI, `{"years_data":{"2022":{"forms":[{"Form":"W-2"}]}}}`, "v2"},
		{"trt", staging.SourceTRT, `{"records":[{"tax_year":2021}]}`, "v1"},
		{"interview", staging.SourceInterview, `{"expenses":{"food":"500"}}`, "v1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := registry.Detect(tc.source, []byte(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, tc.version, doc.Version)
			assert.Equal(t, tc.source, doc.Source)
		})
	}
}

func TestDetectRejectsUnknownShape(t *testing.T) {
	registry := MustRegistry()

	_, err := registry.Detect(staging.SourceAT, []byte(`{"transcripts":[{"tax_year":2021}]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))

	_, err = registry.Detect(staging.SourceTRT, []byte(`not json`))
	assert.True(t, errors.Is(err, services.ErrValidation))

	_, err = registry.Detect(staging.SourceType("mystery"), []byte(`{}`))
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestFieldPriorityAndUnresolved(t *testing.T) {
	doc, err := MustRegistry().Detect(staging.SourceAT, []byte(`{"records":[
		{"tax_year":"2021","adjusted_gross_income":"$52,000.00","agi":1,"total_balance":0},
		{"period":"TY2019","account_balance":"(125.50)"}
	]}`))
	require.NoError(t, err)
	elements := doc.Elements()
	require.Len(t, elements, 2)

	agi, err := elements[0].Field("agi").Number()
	require.NoError(t, err)
	assert.Equal(t, 52000.0, agi)

	balance := elements[0].Field("account_balance")
	require.True(t, balance.Resolved)
	zero, err := balance.Number()
	require.NoError(t, err)
	assert.Zero(t, zero)

	_, err = elements[1].Field("agi").Number()
	assert.ErrorIs(t, err, ErrUnresolvedField)
	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{"adjusted_gross_income", "agi"}, unresolved.Tried)

	year, err := elements[1].Field("tax_year").Year()
	require.NoError(t, err)
	assert.Equal(t, 2019, year)

	negative, err := elements[1].Field("account_balance").Number()
	require.NoError(t, err)
	assert.Equal(t, -125.5, negative)

	assert.False(t, elements[0].Field("not_declared").Resolved)
}

func TestBlankStringIsUnresolved(t *testing.T) {
	doc, err := MustRegistry().Detect(staging.SourceTRT, []byte(`{"records":[{"tax_year":2021,"agi":"  ","adjusted_gross_income":null}]}`))
	require.NoError(t, err)
	value := doc.Elements()[0].Field("agi")
	assert.False(t, value.Resolved)
	assert.Equal(t, "n/a", value.StringOr("n/a"))
}

func TestPerYearLayoutCarriesYearContext(t *testing.T) {
	doc, err := MustRegistry().Detect(staging.SourceWI, []byte(`{"years_data":{
		"2022":[{"Form":{"Type":"1099-NEC"},"Fields":{"Income":"1,200","PayerName":"Acme"}}],
		"2021":{"forms":[{"Form":"W-2","Income":40000,"Issuer":{"Name":"Globex"}}]}
	}}`))
	require.NoError(t, err)
	elements := doc.Elements()
	require.Len(t, elements, 2)

	year, err := elements[0].Field("tax_year").Year()
	require.NoError(t, err)
	assert.Equal(t, 2021, year)
	assert.Equal(t, "W-2", elements[0].Field("form_type").StringOr(""))
	assert.Equal(t, "Globex", elements[0].Field("issuer_name").StringOr(""))

	assert.Equal(t, "1099-NEC", elements[1].Field("form_type").StringOr(""))
	income, err := elements[1].Field("gross_amount").Number()
	require.NoError(t, err)
	assert.Equal(t, 1200.0, income)
	assert.Equal(t, "Acme", elements[1].Field("issuer_name").StringOr(""))
}

func TestTranscriptTransactions(t *testing.T) {
	doc, err := MustRegistry().Detect(staging.SourceAT, []byte(`{"at_records":[{"tax_year":2020,
		"transactions":[{"code":"150","date":"05/17/2021","amount":"1,000"},{"transaction_code":"806","activity_date":"2021-04-15"}]}]}`))
	require.NoError(t, err)
	transactions := doc.Elements()[0].Children("transactions")
	require.Len(t, transactions, 2)

	assert.Equal(t, "150", transactions[0].Field("code").StringOr(""))
	date, err := transactions[0].Field("date").Date()
	require.NoError(t, err)
	assert.Equal(t, 2021, date.Year())
	assert.Equal(t, "806", transactions[1].Field("code").StringOr(""))
	_, err = transactions[1].Field("amount").Number()
	assert.ErrorIs(t, err, ErrUnresolvedField)

	assert.Nil(t, doc.Elements()[0].Children("unknown"))
}

func TestInterviewFields(t *testing.T) {
	doc, err := MustRegistry().Detect(staging.SourceInterview, []byte(`{
		"employment":{"clientEmployer":"Initech","clientGrossIncome":"4,000"},
		"household":{"clientHouseMembers":3,"state":"TX"},
		"expenses":{"food":"650","rent":"1200"}}`))
	require.NoError(t, err)
	root := doc.Elements()
	require.Len(t, root, 1)

	assert.Equal(t, "Initech", root[0].Field("client_employer").StringOr(""))
	members, err := root[0].Field("household_members").Number()
	require.NoError(t, err)
	assert.Equal(t, 3.0, members)
	food, err := root[0].Field("food").Number()
	require.NoError(t, err)
	assert.Equal(t, 650.0, food)
	assert.False(t, root[0].Field("mortgage").Resolved)
}

func TestBoolFlags(t *testing.T) {
	for raw, want := range map[any]bool{"Filed": true, "no": false, true: true} {
		got, err := Value{Field: "return_filed", Raw: raw, Resolved: true}.Bool()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := Value{Field: "return_filed", Raw: "maybe", Resolved: true}.Bool()
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestFieldNames(t *testing.T) {
	names := FieldNames(ExpenseFieldPairs())
	assert.Contains(t, names, "food")
	assert.Contains(t, names, "auto_payment_2")
	assert.Len(t, names, len(ExpenseFieldPairs())/2)
}
