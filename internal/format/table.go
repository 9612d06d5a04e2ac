// Package format renders retrieval results as text for the summarizer and
// for the rawData payload.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerlens/backend/internal/storage/models"
)

// NoResults is what an empty result set renders as.
const NoResults = "No results found."

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

// Table renders rs as a pipe table: header, separator, then one line per
// row. Column order is rs.Columns, i.e. the statement's select list.
func Table(rs models.ResultSet) string {
	if rs.Empty() {
		return NoResults
	}

	var b strings.Builder
	header := make([]string, len(rs.Columns))
	sep := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		header[i] = cellEscaper.Replace(c)
		sep[i] = "---"
	}
	writeRow(&b, header)
	b.WriteByte('\n')
	writeRow(&b, sep)

	cells := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = cellEscaper.Replace(Value(row[i]))
			}
		}
		b.WriteByte('\n')
		writeRow(&b, cells)
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |")
}

// Value renders a single cell. Dates and timestamp-looking strings become
// month/day/year and nil becomes the empty string.
func Value(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return Date(x)
	case *time.Time:
		if x == nil {
			return ""
		}
		return Date(*x)
	case []byte:
		return Value(string(x))
	case string:
		if t, ok := parseTimestamp(x); ok {
			return Date(t)
		}
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}

func Date(t time.Time) string {
	return t.Format("1/2/2006")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	// Every supported layout starts with a four digit year and a dash.
	if len(s) < len("2006-01-02") || s[4] != '-' || s[7] != '-' {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
