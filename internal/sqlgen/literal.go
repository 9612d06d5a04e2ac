package sqlgen

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the few places the supported stores disagree on syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// DialectFor maps a database/sql driver name onto a Dialect.
func DialectFor(driver string) Dialect {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pq":
		return DialectPostgres
	default:
		return DialectSQLite
	}
}

func (d Dialect) likeOperator() string {
	if d == DialectPostgres {
		return "ILIKE"
	}
	return "LIKE"
}

// quoteIdent quotes a column or table identifier. Only names taken from the
// catalog or from configuration ever reach it.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteString is the single place user-derived text becomes SQL.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// escapeLike escapes LIKE wildcards so a keyword matches literally; pair it
// with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// literal renders one filter value. Numbers are emitted bare only when they
// parse as numbers; anything else is quoted as a string.
func (d Dialect) literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteString(x)
	case json.Number:
		if _, err := strconv.ParseFloat(string(x), 64); err == nil {
			return string(x)
		}
		return quoteString(string(x))
	case bool:
		if d == DialectPostgres {
			return strings.ToUpper(strconv.FormatBool(x))
		}
		if x {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return quoteString(fmt.Sprint(x))
	}
}
