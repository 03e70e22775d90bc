package tooldoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jonwraymond/toolfoundation/model"
)

// DetailLevel selects how much documentation Describe returns.
type DetailLevel string

const (
	DetailSummary DetailLevel = "summary"
	DetailSchema  DetailLevel = "schema"
)

// ErrInvalidDetail is returned for unknown detail levels.
var ErrInvalidDetail = errors.New("invalid detail level")

// SummaryLen is the maximum rune length of a summary.
const SummaryLen = 60

// Param describes one input parameter.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// ToolDoc is the rendered documentation of one tool.
type ToolDoc struct {
	ID      string
	Level   DetailLevel
	Summary string

	// Schema level only.
	Description     string
	Params          []Param
	Annotations     map[string]any
	SecuritySummary string
}

// ParseDetail parses a detail level, defaulting to DetailSummary.
func ParseDetail(s string) (DetailLevel, error) {
	switch DetailLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "", DetailSummary:
		return DetailSummary, nil
	case DetailSchema, "full":
		return DetailSchema, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDetail, s)
	}
}

// Describe documents tool, identified to clients as id.
func Describe(id string, tool model.Tool, level DetailLevel) (ToolDoc, error) {
	doc := ToolDoc{ID: id, Level: level, Summary: Summarize(tool.Description, SummaryLen)}
	switch level {
	case DetailSummary:
		return doc, nil
	case DetailSchema:
	default:
		return ToolDoc{}, fmt.Errorf("%w: %q", ErrInvalidDetail, level)
	}

	doc.Description = tool.Description
	doc.Params = paramsFromSchema(tool.InputSchema)
	doc.Annotations = annotationsFromTool(tool.Annotations)
	doc.SecuritySummary = securitySummaryFromMeta(tool.Meta)
	return doc, nil
}

// Summarize returns the first line of s, cut to max runes with "..."
// appended when it was longer.
func Summarize(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

// Text renders doc as plain text.
func (d ToolDoc) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", d.ID)
	if d.Level == DetailSummary {
		if d.Summary != "" {
			fmt.Fprintf(&b, "  %s\n", d.Summary)
		}
		return b.String()
	}

	if d.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", d.Description)
	}
	if len(d.Params) > 0 {
		b.WriteString("\nParameters:\n")
		for _, p := range d.Params {
			req := ""
			if p.Required {
				req = ", required"
			}
			typ := p.Type
			if typ == "" {
				typ = "any"
			}
			fmt.Fprintf(&b, "  - %s (%s%s)", p.Name, typ, req)
			if p.Description != "" {
				fmt.Fprintf(&b, ": %s", p.Description)
			}
			b.WriteString("\n")
		}
	}
	if len(d.Annotations) > 0 {
		keys := make([]string, 0, len(d.Annotations))
		for k := range d.Annotations {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nAnnotations:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, d.Annotations[k])
		}
	}
	if d.SecuritySummary != "" {
		fmt.Fprintf(&b, "\nSecurity: %s\n", d.SecuritySummary)
	}
	return b.String()
}

// paramsFromSchema reads top-level properties of a JSON schema. The schema
// may be any value that marshals to a JSON object.
func paramsFromSchema(schema any) []Param {
	if schema == nil {
		return nil
	}
	obj, ok := schema.(map[string]any)
	if !ok {
		data, err := json.Marshal(schema)
		if err != nil {
			return nil
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil
		}
	}

	props, _ := obj["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}
	required := make(map[string]bool)
	for _, name := range stringSliceFromAny(obj["required"]) {
		required[name] = true
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]Param, 0, len(names))
	for _, name := range names {
		p := Param{Name: name, Required: required[name]}
		if prop, ok := props[name].(map[string]any); ok {
			p.Type = typeName(prop["type"])
			p.Description, _ = prop["description"].(string)
		}
		params = append(params, p)
	}
	return params
}

func typeName(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return strings.Join(stringSliceFromAny(v), "|")
}
