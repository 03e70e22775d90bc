package tooldoc

import (
	"errors"
	"strings"
	"testing"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func sampleTool() model.Tool {
	destructive := true
	return model.Tool{
		Tool: mcp.Tool{
			Name:        "write_file",
			Description: "Write content to a file, creating parent directories when needed.\nOverwrites existing files.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "target path"},
					"content": map[string]any{"type": "string"},
					"mode":    map[string]any{"type": []any{"string", "null"}},
				},
				"required": []any{"path", "content"},
			},
			Annotations: &mcp.ToolAnnotations{DestructiveHint: &destructive, Title: "Write file"},
			Meta: mcp.Meta{
				"securitySchemes": map[string]any{"oauth2": map[string]any{}, "apiKey": map[string]any{}},
			},
		},
		Namespace: "filesystem",
	}
}

func TestDescribe_Summary(t *testing.T) {
	doc, err := Describe("filesystem_write_file", sampleTool(), DetailSummary)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if !strings.HasSuffix(doc.Summary, "...") {
		t.Errorf("expected truncated summary, got %q", doc.Summary)
	}
	if len([]rune(doc.Summary)) != SummaryLen+3 {
		t.Errorf("unexpected summary length %d", len([]rune(doc.Summary)))
	}
	if doc.Params != nil {
		t.Error("summary level must not include params")
	}
}

func TestDescribe_Schema(t *testing.T) {
	doc, err := Describe("filesystem_write_file", sampleTool(), DetailSchema)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if len(doc.Params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(doc.Params))
	}
	want := []Param{
		{Name: "content", Type: "string", Required: true},
		{Name: "mode", Type: "string|null"},
		{Name: "path", Type: "string", Description: "target path", Required: true},
	}
	for i, p := range want {
		if doc.Params[i] != p {
			t.Errorf("param %d: got %+v, want %+v", i, doc.Params[i], p)
		}
	}
	if doc.Annotations["destructiveHint"] != true || doc.Annotations["title"] != "Write file" {
		t.Errorf("unexpected annotations %v", doc.Annotations)
	}
	if doc.SecuritySummary != "apiKey,oauth2" {
		t.Errorf("unexpected security summary %q", doc.SecuritySummary)
	}

	text := doc.Text()
	for _, part := range []string{"filesystem_write_file", "Parameters:", "- path (string, required): target path", "Security: apiKey,oauth2"} {
		if !strings.Contains(text, part) {
			t.Errorf("rendered text missing %q:\n%s", part, text)
		}
	}
}

func TestDescribe_InvalidDetail(t *testing.T) {
	_, err := Describe("x", sampleTool(), "verbose")
	if !errors.Is(err, ErrInvalidDetail) {
		t.Fatalf("expected ErrInvalidDetail, got %v", err)
	}
}

func TestParseDetail(t *testing.T) {
	tests := map[string]DetailLevel{"": DetailSummary, "summary": DetailSummary, "Schema": DetailSchema, "full": DetailSchema}
	for in, want := range tests {
		got, err := ParseDetail(in)
		if err != nil || got != want {
			t.Errorf("ParseDetail(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDetail("nope"); !errors.Is(err, ErrInvalidDetail) {
		t.Errorf("expected ErrInvalidDetail, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize("short", 60); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Summarize("first line\nsecond", 60); got != "first line" {
		t.Errorf("got %q", got)
	}
	if got := Summarize("äöüäöü", 3); got != "äöü..." {
		t.Errorf("got %q", got)
	}
}

func TestSecuritySummaryFromRequirements(t *testing.T) {
	meta := mcp.Meta{
		"securityRequirements": []any{map[string]any{"bearer": []any{}}},
		"securitySchemes":      map[string]any{"ignored": map[string]any{}},
	}
	if got := securitySummaryFromMeta(meta); got != "bearer" {
		t.Errorf("got %q", got)
	}
	if got := securitySummaryFromMeta(nil); got != "" {
		t.Errorf("got %q", got)
	}
}
