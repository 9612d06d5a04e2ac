package schema

import "sort"

// aliases maps business vocabulary to canonical ledger column identifiers.
// Loaded once and never mutated; grow it from the unresolved-term diagnostics.
var aliases = map[string]string{
	"vendor":             "VENDOR_NAME",
	"vendors":            "VENDOR_NAME",
	"vendor name":        "VENDOR_NAME",
	"supplier":           "VENDOR_NAME",
	"payee":              "VENDOR_NAME",
	"accounting period":  "PER_END_DATE",
	"period":             "PER_END_DATE",
	"period end":         "PER_END_DATE",
	"period end date":    "PER_END_DATE",
	"month":              "PER_END_DATE",
	"account":            "ACCOUNT_NAME",
	"account name":       "ACCOUNT_NAME",
	"gl account":         "ACCOUNT_NAME",
	"account number":     "ACCOUNT_NUMBER",
	"gl account number":  "ACCOUNT_NUMBER",
	"company":            "COMPANY_ID",
	"company id":         "COMPANY_ID",
	"entity":             "COMPANY_ID",
	"well":               "WELL_NAME",
	"well name":          "WELL_NAME",
	"lease":              "WELL_NAME",
	"property":           "WELL_NAME",
	"description":        "DESCRIPTION",
	"memo":               "DESCRIPTION",
	"annotation":         "ANNOTATION",
	"note":               "ANNOTATION",
	"comment":            "ANNOTATION",
	"amount":             "AMOUNT",
	"cost":               "AMOUNT",
	"invoice":            "INVOICE_NUMBER",
	"invoice number":     "INVOICE_NUMBER",
	"cost center":        "COST_CENTER",
	"department":         "COST_CENTER",
	"category":           "EXPENSE_CATEGORY",
	"expense category":   "EXPENSE_CATEGORY",
	"expense type":       "EXPENSE_CATEGORY",
	"transaction date":   "TRANSACTION_DATE",
	"posting date":       "TRANSACTION_DATE",
	"date":               "TRANSACTION_DATE",
	"fiscal year":        "FISCAL_YEAR",
	"year":               "FISCAL_YEAR",
}

// SearchableColumns are the text columns keyword terms are matched against,
// in the order their predicates are emitted.
var SearchableColumns = []string{"DESCRIPTION", "VENDOR_NAME", "ACCOUNT_NAME", "ANNOTATION"}

// Vocabulary lists every alias term, sorted, for classifier prompts.
func Vocabulary() []string {
	terms := make([]string, 0, len(aliases))
	for term := range aliases {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Alias returns the canonical column for a normalized term.
func Alias(term string) (string, bool) {
	column, ok := aliases[Normalize(term)]
	return column, ok
}
