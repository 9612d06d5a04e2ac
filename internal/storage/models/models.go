package models

// ResultSet is the rows a data-store statement returned. Columns keeps the
// order the statement selected them in; every row in Rows is aligned with it.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

func (r ResultSet) Len() int {
	return len(r.Rows)
}

func (r ResultSet) Empty() bool {
	return len(r.Rows) == 0
}

// Field is one metadata entry of a semantic match.
type Field struct {
	Key   string
	Value string
}

// Snippet is one ranked semantic-search match reduced to ordered key/value
// metadata.
type Snippet struct {
	ID     string
	Score  float64
	Fields []Field
}

// LedgerChunk is one ledger row prepared for the semantic index.
type LedgerChunk struct {
	ID        string
	Text      string
	Embedding []float32
	Vendor    string
	Account   string
	Period    string
	Amount    string
}
