package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Markers returned for successful calls that produced no text.
const (
	// NoOutputMarker is returned when a call produced no content at all.
	NoOutputMarker = "✓ succeeded (no output)"
	// SuccessMarker is returned when content was produced but none of it
	// renders as text.
	SuccessMarker = "✓ succeeded"
)

// NormalizeResult flattens a tool result into text. Text parts are joined
// with newlines, binary parts are summarized by size and resource links are
// rendered as their URI. Results carrying only structured content are
// rendered as JSON.
func NormalizeResult(res *mcp.CallToolResult) string {
	if res == nil {
		return NoOutputMarker
	}
	if len(res.Content) == 0 {
		if res.StructuredContent != nil {
			if data, err := json.Marshal(res.StructuredContent); err == nil {
				return string(data)
			}
			return fmt.Sprintf("%v", res.StructuredContent)
		}
		return NoOutputMarker
	}

	parts := make([]string, 0, len(res.Content))
	for _, content := range res.Content {
		if part := renderContent(content); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return SuccessMarker
	}
	return strings.Join(parts, "\n")
}

func renderContent(content mcp.Content) string {
	switch c := content.(type) {
	case *mcp.TextContent:
		return c.Text
	case *mcp.ImageContent:
		return binarySummary(len(c.Data))
	case *mcp.AudioContent:
		return binarySummary(len(c.Data))
	case *mcp.EmbeddedResource:
		if c.Resource == nil {
			return ""
		}
		if c.Resource.Text != "" {
			return c.Resource.Text
		}
		if len(c.Resource.Blob) > 0 {
			return binarySummary(len(c.Resource.Blob))
		}
		return c.Resource.URI
	case *mcp.ResourceLink:
		return c.URI
	default:
		return ""
	}
}

func binarySummary(n int) string {
	return fmt.Sprintf("[Binary: %d bytes]", n)
}
