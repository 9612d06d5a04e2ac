package intent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ledgerlens/backend/pkg/apperrors"
)

const intentSchema = `{
	"type": "object",
	"required": ["data_type"],
	"properties": {
		"data_type": {"type": "string", "minLength": 1},
		"group_by":  {"type": ["null", "string", "array"], "items": {"type": "string"}},
		"filters":   {"type": ["null", "object"]},
		"keyword":   {"type": ["null", "string", "array"], "items": {"type": "string"}},
		"keywords":  {"type": ["null", "string", "array"], "items": {"type": "string"}},
		"mode":      {"type": ["null", "string"]}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(intentSchema)

// Parse turns raw classifier output into an Intent. Any structural problem
// yields an *apperrors.Error with code MALFORMED_INTENT carrying raw; only
// genuinely optional fields are defaulted.
func Parse(raw string) (Intent, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return Intent{}, apperrors.NewMalformedIntent(raw, errors.New("empty classifier output"))
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(body))
	if err != nil {
		return Intent{}, apperrors.NewMalformedIntent(raw, fmt.Errorf("invalid JSON: %w", err))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Intent{}, apperrors.NewMalformedIntent(raw, fmt.Errorf("schema violation: %s", strings.Join(msgs, "; ")))
	}

	var doc struct {
		DataType string          `json:"data_type"`
		GroupBy  json.RawMessage `json:"group_by"`
		Filters  map[string]any  `json:"filters"`
		Keyword  json.RawMessage `json:"keyword"`
		Keywords json.RawMessage `json:"keywords"`
		Mode     *string         `json:"mode"`
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Intent{}, apperrors.NewMalformedIntent(raw, fmt.Errorf("decode intent: %w", err))
	}

	in := Intent{
		DataType: DataType(strings.ToLower(strings.TrimSpace(doc.DataType))),
		Mode:     parseMode(doc.Mode),
	}
	if in.DataType == "" {
		return Intent{}, apperrors.NewMalformedIntent(raw, errors.New("data_type is blank"))
	}

	groupBy, err := stringList(doc.GroupBy)
	if err != nil {
		return Intent{}, apperrors.NewMalformedIntent(raw, fmt.Errorf("group_by: %w", err))
	}
	in.GroupBy = dedupe(groupBy)

	keywords, err := stringList(doc.Keyword)
	if err != nil {
		return Intent{}, apperrors.NewMalformedIntent(raw, fmt.Errorf("keyword: %w", err))
	}
	more, err := stringList(doc.Keywords)
	if err != nil {
		return Intent{}, apperrors.NewMalformedIntent(raw, fmt.Errorf("keywords: %w", err))
	}
	keywords = append(keywords, more...)

	filters, exclude, lifted, err := parseFilters(doc.Filters)
	if err != nil {
		return Intent{}, apperrors.NewMalformedIntent(raw, fmt.Errorf("filters: %w", err))
	}
	in.Filters = filters
	in.Exclude = exclude
	// Classifiers sometimes put search terms under filters.keyword; they
	// mean the same as the top-level field.
	in.Keywords = dedupe(append(keywords, lifted...))

	return in, nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseMode(mode *string) Mode {
	if mode == nil {
		return ModeSearch
	}
	switch Mode(strings.ToLower(strings.TrimSpace(*mode))) {
	case ModeSummary:
		return ModeSummary
	default:
		return ModeSearch
	}
}

// stringList accepts null, a string, or an array of strings.
func stringList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("want string or array of strings")
	}
	return many, nil
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func parseFilters(raw map[string]any) (filters, exclude []Filter, keywords []string, err error) {
	for _, field := range sortedKeys(raw) {
		value := raw[field]
		switch strings.ToLower(strings.TrimSpace(field)) {
		case "exclude":
			exclude, err = parseExclude(value)
			if err != nil {
				return nil, nil, nil, err
			}
			continue
		case "keyword", "keywords":
			kw, err := literalStrings(value)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("%s: %w", field, err)
			}
			keywords = append(keywords, kw...)
			continue
		}

		f, ok, err := parseFilterValue(field, value)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s: %w", field, err)
		}
		if ok {
			filters = append(filters, f)
		}
	}
	return filters, exclude, keywords, nil
}

func parseFilterValue(field string, value any) (Filter, bool, error) {
	switch v := value.(type) {
	case nil:
		return Filter{}, false, nil
	case string, json.Number, bool:
		return Filter{Field: field, Op: OpEq, Values: []any{v}}, true, nil
	case []any:
		if len(v) == 2 {
			if op, ok := operatorOf(v[0]); ok {
				if !isLiteral(v[1]) {
					return Filter{}, false, fmt.Errorf("operator %s needs a literal operand", op)
				}
				return Filter{Field: field, Op: op, Values: []any{v[1]}}, true, nil
			}
		}
		if len(v) == 0 {
			return Filter{}, false, nil
		}
		for _, item := range v {
			if !isLiteral(item) {
				return Filter{}, false, fmt.Errorf("list items must be literals")
			}
		}
		if len(v) == 1 {
			return Filter{Field: field, Op: OpEq, Values: v}, true, nil
		}
		return Filter{Field: field, Op: OpIn, Values: v}, true, nil
	case map[string]any:
		opRaw, hasOp := v["operator"]
		if !hasOp {
			opRaw, hasOp = v["op"]
		}
		operand, hasValue := v["value"]
		if !hasOp || !hasValue {
			return Filter{}, false, fmt.Errorf("object filter needs operator and value")
		}
		op, ok := operatorOf(opRaw)
		if !ok {
			return Filter{}, false, fmt.Errorf("unsupported operator %v", opRaw)
		}
		if !isLiteral(operand) {
			return Filter{}, false, fmt.Errorf("operator %s needs a literal operand", op)
		}
		return Filter{Field: field, Op: op, Values: []any{operand}}, true, nil
	default:
		return Filter{}, false, fmt.Errorf("unsupported filter value %T", value)
	}
}

func parseExclude(value any) ([]Filter, error) {
	if value == nil {
		return nil, nil
	}
	fields, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("exclude must be an object")
	}
	var out []Filter
	for _, field := range sortedKeys(fields) {
		var literals []any
		switch v := fields[field].(type) {
		case nil:
			continue
		case []any:
			for _, item := range v {
				if !isLiteral(item) {
					return nil, fmt.Errorf("exclude.%s: list items must be literals", field)
				}
			}
			literals = v
		default:
			if !isLiteral(v) {
				return nil, fmt.Errorf("exclude.%s: unsupported value %T", field, v)
			}
			literals = []any{v}
		}
		switch len(literals) {
		case 0:
			continue
		case 1:
			out = append(out, Filter{Field: field, Op: OpNe, Values: literals})
		default:
			out = append(out, Filter{Field: field, Op: OpNotIn, Values: literals})
		}
	}
	return out, nil
}

func literalStrings(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("want strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("want string or array of strings")
	}
}

func operatorOf(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	op, ok := operators[strings.TrimSpace(s)]
	return op, ok
}

func isLiteral(v any) bool {
	switch v.(type) {
	case string, json.Number, bool:
		return true
	default:
		return false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
