package format

import (
	"strings"

	"github.com/ledgerlens/backend/internal/storage/models"
)

// Snippet flattens one semantic match into "key: value" lines in the order
// the index returned its metadata.
func Snippet(s models.Snippet) string {
	lines := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		lines = append(lines, f.Key+": "+Value(f.Value))
	}
	return strings.Join(lines, "\n")
}

// Snippets renders matches as blank-line separated blocks. No matches
// renders as the empty string so callers can tell absence from content.
func Snippets(snippets []models.Snippet) string {
	blocks := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if block := Snippet(s); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// Sections joins non-empty parts under their headings.
func Sections(parts ...Section) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.Body) == "" {
			continue
		}
		if p.Title == "" {
			out = append(out, p.Body)
			continue
		}
		out = append(out, "### "+p.Title+"\n"+p.Body)
	}
	return strings.Join(out, "\n\n")
}

type Section struct {
	Title string
	Body  string
}
