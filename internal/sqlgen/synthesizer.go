// Package sqlgen turns a parsed intent and the live column catalog into the
// aggregate and raw SELECT statements run against the ledger table.
package sqlgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ledgerlens/backend/internal/intent"
	"github.com/ledgerlens/backend/internal/schema"
	"github.com/ledgerlens/backend/pkg/apperrors"
)

// totalAlias is quoted so every dialect keeps its case.
const totalAlias = "TOTAL"

// Cap bounds both queries so formatting and summarization input stay small.
const Cap = 100

// Options names the target table. Schema may be empty.
type Options struct {
	Schema       string
	Table        string
	AmountColumn string
	Dialect      Dialect
}

// QueryPair is always built as a unit from one intent and one catalog.
type QueryPair struct {
	Aggregate string `json:"aggregateQuery"`
	Raw       string `json:"rawQuery"`

	// GroupBy lists the resolved group-by columns in the order requested.
	GroupBy []string `json:"groupBy"`
	// Notes describe parts of the intent that could not be applied.
	Notes []string `json:"notes,omitempty"`
}

// Synthesize builds the QueryPair. Terms the resolver cannot map are dropped
// and reported through it; they never reach the SQL text.
func Synthesize(in intent.Intent, res *schema.Resolver, opts Options) (QueryPair, error) {
	if strings.TrimSpace(string(in.DataType)) == "" {
		return QueryPair{}, apperrors.NewMalformedIntent("", errors.New("intent has no data type"))
	}
	if strings.TrimSpace(opts.Table) == "" {
		return QueryPair{}, apperrors.NewSchemaUnavailable(errors.New("no ledger table configured"))
	}
	catalog := res.Catalog()
	amount, ok := catalog.Lookup(opts.AmountColumn)
	if !ok {
		return QueryPair{}, apperrors.NewSchemaUnavailable(
			fmt.Errorf("amount column %q not in catalog of %d columns", opts.AmountColumn, catalog.Len()))
	}

	var pair QueryPair

	seen := make(map[string]bool)
	for _, term := range in.GroupBy {
		col, ok := res.Resolve(term, schema.KindGroupBy)
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		pair.GroupBy = append(pair.GroupBy, col)
	}

	var predicates []string

	if clause, note := keywordClause(in.Keywords, catalog, opts.Dialect); clause != "" {
		predicates = append(predicates, clause)
	} else if note != "" {
		pair.Notes = append(pair.Notes, note)
	}
	for _, f := range in.Filters {
		col, ok := res.Resolve(f.Field, schema.KindFilter)
		if !ok {
			continue
		}
		if p, ok := comparison(col, f, opts.Dialect); ok {
			predicates = append(predicates, p)
		} else {
			pair.Notes = append(pair.Notes, fmt.Sprintf("filter on %s dropped: unsupported operator %q", col, f.Op))
		}
	}
	for _, f := range in.Exclude {
		col, ok := res.Resolve(f.Field, schema.KindExclude)
		if !ok {
			continue
		}
		if p, ok := comparison(col, f, opts.Dialect); ok {
			// Rows with no value in col are not the excluded value.
			predicates = append(predicates, "("+p+" OR "+quoteIdent(col)+" IS NULL)")
		} else {
			pair.Notes = append(pair.Notes, fmt.Sprintf("exclusion on %s dropped: unsupported operator %q", col, f.Op))
		}
	}

	from := " FROM " + tableRef(opts)
	where := ""
	if len(predicates) > 0 {
		where = " WHERE " + strings.Join(predicates, " AND ")
	}
	limit := fmt.Sprintf(" LIMIT %d", Cap)

	total := " AS " + quoteIdent(totalAlias)
	cols := make([]string, 0, len(pair.GroupBy)+1)
	for _, c := range pair.GroupBy {
		cols = append(cols, quoteIdent(c))
	}
	groupList := strings.Join(cols, ", ")

	var agg strings.Builder
	agg.WriteString("SELECT ")
	switch {
	case in.DataType.IsBalance():
		cols = append(cols, quoteIdent(amount)+total)
	default:
		if !in.DataType.IsFlow() {
			pair.Notes = append(pair.Notes, fmt.Sprintf("data type %q not recognised; summing %s", in.DataType, amount))
		}
		cols = append(cols, "SUM("+quoteIdent(amount)+")"+total)
	}
	agg.WriteString(strings.Join(cols, ", "))
	agg.WriteString(from)
	agg.WriteString(where)
	if len(pair.GroupBy) > 0 {
		// Balances are point-in-time rows, so they are ordered but not grouped.
		if !in.DataType.IsBalance() {
			agg.WriteString(" GROUP BY " + groupList)
		}
		agg.WriteString(" ORDER BY " + groupList)
	}
	agg.WriteString(limit)

	pair.Aggregate = agg.String()
	pair.Raw = "SELECT *" + from + where + limit
	return pair, nil
}

func tableRef(opts Options) string {
	if s := strings.TrimSpace(opts.Schema); s != "" {
		return quoteIdent(s) + "." + quoteIdent(opts.Table)
	}
	return quoteIdent(opts.Table)
}

// keywordClause ORs each term across the searchable columns present in the
// catalog and ANDs the per-term groups, so every extra term narrows.
func keywordClause(keywords []string, catalog schema.Catalog, d Dialect) (string, string) {
	if len(keywords) == 0 {
		return "", ""
	}
	var cols []string
	for _, name := range schema.SearchableColumns {
		if col, ok := catalog.Lookup(name); ok {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		return "", fmt.Sprintf("keywords %q ignored: no searchable text columns in catalog", keywords)
	}

	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		pattern := quoteString("%"+escapeLike(kw)+"%") + ` ESCAPE '\'`
		ors := make([]string, 0, len(cols))
		for _, col := range cols {
			ors = append(ors, quoteIdent(col)+" "+d.likeOperator()+" "+pattern)
		}
		terms = append(terms, "("+strings.Join(ors, " OR ")+")")
	}
	return strings.Join(terms, " AND "), ""
}

var comparisonOps = map[string]bool{
	intent.OpEq:  true,
	intent.OpNe:  true,
	intent.OpGt:  true,
	intent.OpGte: true,
	intent.OpLt:  true,
	intent.OpLte: true,
}

func comparison(col string, f intent.Filter, d Dialect) (string, bool) {
	lhs := quoteIdent(col)
	switch {
	case f.Op == intent.OpIn || f.Op == intent.OpNotIn:
		if len(f.Values) == 0 {
			return "", false
		}
		vals := make([]string, 0, len(f.Values))
		for _, v := range f.Values {
			vals = append(vals, d.literal(v))
		}
		return lhs + " " + f.Op + " (" + strings.Join(vals, ", ") + ")", true
	case comparisonOps[f.Op] && len(f.Values) == 1:
		return lhs + " " + f.Op + " " + d.literal(f.Values[0]), true
	default:
		return "", false
	}
}

// PageQuery selects one page of the whole table in a stable order, for the
// indexer. orderBy must be a catalog column.
func PageQuery(opts Options, orderBy string, limit, offset int) string {
	return fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT %d OFFSET %d",
		tableRef(opts), quoteIdent(orderBy), limit, offset)
}
