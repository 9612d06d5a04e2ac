// Package intent holds the structured interpretation of a free-text ledger
// question and the only way to produce one: Parse, which treats classifier
// output as untrusted input.
package intent

import (
	"strings"
)

type Mode string

const (
	ModeSummary Mode = "summary"
	ModeSearch  Mode = "search"
)

// DataType names the kind of figure the user asked about, e.g. "expenses"
// or "balances".
type DataType string

var balanceTypes = map[DataType]bool{
	"balance":          true,
	"balances":         true,
	"account balance":  true,
	"account balances": true,
	"balance sheet":    true,
}

var flowTypes = map[DataType]bool{
	"expense":      true,
	"expenses":     true,
	"cost":         true,
	"costs":        true,
	"spend":        true,
	"spending":     true,
	"revenue":      true,
	"revenues":     true,
	"income":       true,
	"payments":     true,
	"invoices":     true,
	"transactions": true,
}

func (d DataType) normalized() DataType {
	return DataType(strings.ToLower(strings.TrimSpace(string(d))))
}

// IsBalance reports whether the figures are point-in-time balances, which
// are passed through rather than summed.
func (d DataType) IsBalance() bool {
	return balanceTypes[d.normalized()]
}

// IsFlow reports whether the figures accumulate over a period and are summed.
func (d DataType) IsFlow() bool {
	return flowTypes[d.normalized()]
}

// Comparison operators a filter may carry. Anything else is rejected at parse.
const (
	OpEq    = "="
	OpNe    = "<>"
	OpGt    = ">"
	OpGte   = ">="
	OpLt    = "<"
	OpLte   = "<="
	OpIn    = "IN"
	OpNotIn = "NOT IN"
)

var operators = map[string]string{
	"=":  OpEq,
	"==": OpEq,
	"!=": OpNe,
	"<>": OpNe,
	">":  OpGt,
	">=": OpGte,
	"<":  OpLt,
	"<=": OpLte,
}

// Filter is one predicate on a human-named field. Values holds literals:
// string, json.Number or bool.
type Filter struct {
	Field  string `json:"field"`
	Op     string `json:"op"`
	Values []any  `json:"values"`
}

// Intent is produced once per request by Parse and read, never written, by
// every later stage.
type Intent struct {
	DataType DataType `json:"data_type"`
	GroupBy  []string `json:"group_by"`
	Filters  []Filter `json:"filters"`
	Exclude  []Filter `json:"exclude"`
	Keywords []string `json:"keyword"`
	Mode     Mode     `json:"mode"`
}

func (i Intent) IsSummary() bool {
	return i.Mode == ModeSummary
}
