package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolbridge/backend"
)

// Session is a live, handshaken connection to one backend.
// Implementations must be safe for concurrent use.
type Session interface {
	// ListTools returns every tool the backend exposes.
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	// CallTool invokes a tool by its backend-local name.
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	// Close releases the session and any process or connection behind it.
	Close() error
}

// Dialer acquires a Session for a descriptor, including the protocol
// handshake. Dial must honor ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, d backend.Descriptor) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, d backend.Descriptor) (Session, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, d backend.Descriptor) (Session, error) {
	return f(ctx, d)
}

// MCPDialer dials backends with the MCP Go SDK client.
type MCPDialer struct {
	// ClientName and ClientVersion identify the bridge during the handshake.
	ClientName    string
	ClientVersion string

	// ScriptsRoot resolves relative script arguments of stdio backends.
	ScriptsRoot string

	// MaxRetries controls reconnect attempts for streamable HTTP transport.
	MaxRetries int

	// Transport overrides transport construction when set (useful for tests).
	Transport func(d backend.Descriptor) (mcp.Transport, error)
}

// Dial connects to the backend and completes the MCP initialize handshake.
func (m *MCPDialer) Dial(ctx context.Context, d backend.Descriptor) (Session, error) {
	transport, err := m.transport(d)
	if err != nil {
		return nil, err
	}

	name := m.ClientName
	if name == "" {
		name = "toolbridge"
	}
	client := mcp.NewClient(&mcp.Implementation{Name: name, Version: m.ClientVersion}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}
	return &mcpSession{session: session}, nil
}

func (m *MCPDialer) transport(d backend.Descriptor) (mcp.Transport, error) {
	if m.Transport != nil {
		return m.Transport(d)
	}

	switch d.Kind() {
	case backend.TypeStdio:
		cmd := exec.Command(d.LaunchCommand(), d.ResolveArgs(m.ScriptsRoot)...)
		cmd.Env = d.Environ(os.Environ())
		if m.ScriptsRoot != "" {
			cmd.Dir = m.ScriptsRoot
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case backend.TypeHTTP:
		if strings.TrimSpace(d.URL) == "" {
			return nil, errors.New("backend URL is required")
		}
		return &mcp.StreamableClientTransport{
			Endpoint:   d.URL,
			HTTPClient: httpClientWithHeaders(d.Headers),
			MaxRetries: m.MaxRetries,
		}, nil
	case backend.TypeSSE:
		parsed, err := url.Parse(d.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid backend URL: %w", err)
		}
		if parsed.Scheme == "sse" {
			parsed.Scheme = "http"
		}
		return &mcp.SSEClientTransport{
			Endpoint:   parsed.String(),
			HTTPClient: httpClientWithHeaders(d.Headers),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported backend type %q", d.Kind())
	}
}

type mcpSession struct {
	session *mcp.ClientSession
}

func (s *mcpSession) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	var (
		tools  []*mcp.Tool
		cursor string
	)
	for {
		res, err := s.session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		for _, tool := range res.Tools {
			if tool != nil {
				tools = append(tools, tool)
			}
		}
		if res.NextCursor == "" || res.NextCursor == cursor {
			return tools, nil
		}
		cursor = res.NextCursor
	}
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	return s.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
}

func (s *mcpSession) Close() error {
	return s.session.Close()
}

func httpClientWithHeaders(headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return nil
	}
	clone := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.TrimSpace(k) == "" {
			continue
		}
		clone[k] = v
	}
	if len(clone) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerRoundTripper{
			base:    http.DefaultTransport,
			headers: clone,
		},
	}
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := h.base
	if base == nil {
		base = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	for key, value := range h.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
	return base.RoundTrip(req)
}
