package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
)

func TestToolID_String(t *testing.T) {
	id := ToolID{Backend: "web-search", Name: "search"}
	assert.Equal(t, "web-search_search", id.String())
	assert.False(t, id.IsZero())
	assert.True(t, ToolID{}.IsZero())
}

func TestResolveBackend(t *testing.T) {
	backends := []string{"git", "web", "web_search", "docker-remote"}

	tests := []struct {
		flat string
		want ToolID
		ok   bool
	}{
		{"git_status", ToolID{"git", "status"}, true},
		{"git_log_oneline", ToolID{"git", "log_oneline"}, true},
		{"docker-remote_ps", ToolID{"docker-remote", "ps"}, true},
		{"web_fetch", ToolID{"web", "fetch"}, true},
		{"web_search_query", ToolID{}, false},
		{"git_", ToolID{}, false},
		{"git", ToolID{}, false},
		{"doesnotexist_foo", ToolID{}, false},
		{"", ToolID{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.flat, func(t *testing.T) {
			got, ok := resolveBackend(tt.flat, backends)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeResult(t *testing.T) {
	tests := []struct {
		name string
		res  *mcp.CallToolResult
		want string
	}{
		{"nil", nil, NoOutputMarker},
		{"empty", &mcp.CallToolResult{}, NoOutputMarker},
		{
			"text joined",
			&mcp.CallToolResult{Content: []mcp.Content{
				&mcp.TextContent{Text: "line one"},
				&mcp.TextContent{Text: "line two"},
			}},
			"line one\nline two",
		},
		{
			"binary summarized",
			&mcp.CallToolResult{Content: []mcp.Content{
				&mcp.TextContent{Text: "screenshot:"},
				&mcp.ImageContent{Data: make([]byte, 2048), MIMEType: "image/png"},
			}},
			"screenshot:\n[Binary: 2048 bytes]",
		},
		{
			"only empty text",
			&mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{}}},
			SuccessMarker,
		},
		{
			"resource link",
			&mcp.CallToolResult{Content: []mcp.Content{&mcp.ResourceLink{URI: "file:///tmp/out.txt", Name: "out"}}},
			"file:///tmp/out.txt",
		},
		{
			"embedded text resource",
			&mcp.CallToolResult{Content: []mcp.Content{&mcp.EmbeddedResource{
				Resource: &mcp.ResourceContents{URI: "file:///a", Text: "contents"},
			}}},
			"contents",
		},
		{
			"structured only",
			&mcp.CallToolResult{StructuredContent: map[string]any{"sum": 3}},
			`{"sum":3}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeResult(tt.res))
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "timeout", Kind(fmt.Errorf("%w: x", ErrTimeout)))
	assert.Equal(t, "tool_not_found", Kind(fmt.Errorf("%w: x", ErrToolNotFound)))
	assert.Equal(t, "internal", Kind(errors.New("other")))
	assert.Equal(t, "internal", Kind(context.Canceled))
}
