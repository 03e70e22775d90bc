package tooldoc

import (
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func stringSliceFromAny(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// securitySummaryFromMeta lists the security scheme names a backend
// advertises in a tool's _meta, preferring requirements over schemes.
func securitySummaryFromMeta(meta mcp.Meta) string {
	if meta == nil {
		return ""
	}
	names := map[string]bool{}
	collectKeys(meta["securityRequirements"], names)
	if len(names) == 0 {
		collectKeys(meta["securitySchemes"], names)
	}
	if len(names) == 0 {
		return ""
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// collectKeys adds the keys of a map, or of every map in a list, to names.
func collectKeys(raw any, names map[string]bool) {
	switch v := raw.(type) {
	case map[string]any:
		for name := range v {
			names[name] = true
		}
	case map[string][]string:
		for name := range v {
			names[name] = true
		}
	case []any:
		for _, item := range v {
			collectKeys(item, names)
		}
	case []map[string]any:
		for _, item := range v {
			collectKeys(item, names)
		}
	case []map[string][]string:
		for _, item := range v {
			collectKeys(item, names)
		}
	}
}

func annotationsFromTool(ann *mcp.ToolAnnotations) map[string]any {
	if ann == nil {
		return nil
	}
	out := map[string]any{
		"idempotentHint": ann.IdempotentHint,
		"readOnlyHint":   ann.ReadOnlyHint,
	}
	if ann.DestructiveHint != nil {
		out["destructiveHint"] = *ann.DestructiveHint
	}
	if ann.OpenWorldHint != nil {
		out["openWorldHint"] = *ann.OpenWorldHint
	}
	if ann.Title != "" {
		out["title"] = ann.Title
	}
	return out
}
