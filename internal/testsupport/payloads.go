package testsupport

// Source payloads in the shapes the transcript and interview APIs return.
const (
	ATPayload = `{"records":[
		{"tax_year":"2022","return_filed":"Filed","filing_status":"Single","adjusted_gross_income":"48,250.00",
		 "taxable_income":"35,400","tax_per_return":"4,120.00","total_balance":"1,875.25",
		 "transactions":[{"code":"150","date":"05/16/2023","description":"Tax return filed","amount":"4,120.00"},
		                 {"code":"806","date":"04/15/2023","description":"W-2 withholding","amount":"(2,300.00)"}]},
		{"tax_year":"2021","total_balance":0,
		 "transactions":[{"code":"150","activity_date":"2022-06-01","amount":"3,000"}]}
	],"metadata":{"source":"tiparser"}}`

	WIPayload = `{"years_data":{
		"2022":{"forms":[{"Form":{"Type":"W-2"},"Income":"52,000","Withholding":"2,300","Issuer":{"Name":"Acme Corp","EIN":"12-3456789"}}]},
		"2021":[{"Form":"1099-NEC","Fields":{"Income":"8,500","PayerName":"Globex"}}]
	}}`

	TRTPayload = `{"records":[
		{"tax_year":2022,"filing_status":"Single","agi":48250,"taxable_income":35400,"total_tax":4120,"schedule_c_net_profit":"20,000"},
		{"tax_year":2021,"agi":39000,"se_tax":"1,130.50"}
	]}`

	InterviewPayload = `{
		"employment":{"clientEmployer":"Acme Corp","clientGrossIncome":"4,333","clientNetIncome":"3,400","clientFrequentlyPaid":"Monthly","clientMonthlyIncome":"4,333"},
		"household":{"clientHouseMembers":2,"under65":2,"over65":0,"state":"TX","county":"Travis"},
		"income":{"clientWages":"4,333","otherIncome":"250"},
		"expenses":{"food":"600","rent":"1,500","electricity":"120","phone":"80"}
	}`
)
