package schema

import (
	"strings"
)

// Kind says where in the intent a term came from.
type Kind string

const (
	KindGroupBy Kind = "group_by"
	KindFilter  Kind = "filter"
	KindExclude Kind = "exclude"
)

const (
	ReasonUnknownTerm   = "no alias and no matching column"
	ReasonAliasNotInSet = "alias target not in catalog"
	ReasonEmpty         = "empty term"
)

// Resolution pairs a human term with the column it resolved to, or records
// why it did not resolve.
type Resolution struct {
	Term     string `json:"term"`
	Kind     Kind   `json:"kind"`
	Column   string `json:"column,omitempty"`
	Resolved bool   `json:"resolved"`
	Reason   string `json:"reason,omitempty"`
}

// Reporter receives unresolved terms so operators can grow the alias table.
type Reporter interface {
	Unresolved(res Resolution)
}

type ReporterFunc func(res Resolution)

func (f ReporterFunc) Unresolved(res Resolution) { f(res) }

type nopReporter struct{}

func (nopReporter) Unresolved(Resolution) {}

// Normalize trims, lowercases and collapses inner whitespace.
func Normalize(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// Resolve maps term to a catalog column: alias table first, then exact
// case-insensitive column name. There is no fuzzy or partial matching.
func Resolve(term string, catalog Catalog) (string, string, bool) {
	norm := Normalize(term)
	if norm == "" {
		return "", ReasonEmpty, false
	}

	if target, ok := aliases[norm]; ok {
		if col, ok := catalog.Lookup(target); ok {
			return col, "", true
		}
		// An alias whose column is missing may still name a real column.
		if col, ok := catalog.Lookup(strings.TrimSpace(term)); ok {
			return col, "", true
		}
		return "", ReasonAliasNotInSet, false
	}

	if col, ok := catalog.Lookup(strings.TrimSpace(term)); ok {
		return col, "", true
	}
	return "", ReasonUnknownTerm, false
}

// Resolver resolves terms against one request's catalog and keeps a record
// of every resolution.
type Resolver struct {
	catalog  Catalog
	reporter Reporter
	records  []Resolution
}

func NewResolver(catalog Catalog, reporter Reporter) *Resolver {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Resolver{catalog: catalog, reporter: reporter}
}

func (r *Resolver) Resolve(term string, kind Kind) (string, bool) {
	col, reason, ok := Resolve(term, r.catalog)
	res := Resolution{Term: term, Kind: kind, Column: col, Resolved: ok, Reason: reason}
	r.records = append(r.records, res)
	if !ok {
		r.reporter.Unresolved(res)
	}
	return col, ok
}

func (r *Resolver) Catalog() Catalog {
	return r.catalog
}

// Records returns every resolution made so far, in call order.
func (r *Resolver) Records() []Resolution {
	out := make([]Resolution, len(r.records))
	copy(out, r.records)
	return out
}
