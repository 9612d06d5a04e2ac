package schema

import "strings"

// Catalog is the set of valid column identifiers of the ledger table as the
// store reported them for the current request.
type Catalog struct {
	columns []string
	byUpper map[string]string
}

func NewCatalog(columns []string) Catalog {
	c := Catalog{
		columns: make([]string, 0, len(columns)),
		byUpper: make(map[string]string, len(columns)),
	}
	for _, col := range columns {
		col = strings.TrimSpace(col)
		if col == "" {
			continue
		}
		key := strings.ToUpper(col)
		if _, dup := c.byUpper[key]; dup {
			continue
		}
		c.byUpper[key] = col
		c.columns = append(c.columns, col)
	}
	return c
}

// Lookup matches name case-insensitively and returns the catalog's own
// spelling of the column.
func (c Catalog) Lookup(name string) (string, bool) {
	col, ok := c.byUpper[strings.ToUpper(strings.TrimSpace(name))]
	return col, ok
}

func (c Catalog) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

func (c Catalog) Columns() []string {
	out := make([]string, len(c.columns))
	copy(out, c.columns)
	return out
}

func (c Catalog) Len() int {
	return len(c.columns)
}
