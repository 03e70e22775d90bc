package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/toolbridge/backend"
	"github.com/jonwraymond/toolbridge/demo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSession struct {
	name     string
	tools    []*mcp.Tool
	closeErr error
	call     func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	listErr  error
	closed   atomic.Int32
	onClose  func(name string)
}

func (s *fakeSession) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tools, nil
}

func (s *fakeSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if s.call != nil {
		return s.call(ctx, name, args)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s.name + ":" + name}}}, nil
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	if s.onClose != nil {
		s.onClose(s.name)
	}
	return s.closeErr
}

func toolsNamed(names ...string) []*mcp.Tool {
	out := make([]*mcp.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, &mcp.Tool{Name: name, Description: name + " tool", InputSchema: map[string]any{"type": "object"}})
	}
	return out
}

// fakeDialer hands out fakeSessions built by build and counts dials.
type fakeDialer struct {
	mu       sync.Mutex
	dials    map[string]int
	sessions map[string][]*fakeSession
	delay    time.Duration
	build    func(name string) (*fakeSession, error)
}

func newFakeDialer(build func(name string) (*fakeSession, error)) *fakeDialer {
	return &fakeDialer{
		dials:    make(map[string]int),
		sessions: make(map[string][]*fakeSession),
		build:    build,
	}
}

func (f *fakeDialer) Dial(ctx context.Context, d backend.Descriptor) (Session, error) {
	f.mu.Lock()
	f.dials[d.Name]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s, err := f.build(d.Name)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.sessions[d.Name] = append(f.sessions[d.Name], s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeDialer) dialCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials[name]
}

func (f *fakeDialer) totalDials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.dials {
		total += n
	}
	return total
}

func (f *fakeDialer) session(name string) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.sessions[name]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// toolsByBackend builds sessions exposing the given tools per backend.
func toolsByBackend(tools map[string][]string) func(string) (*fakeSession, error) {
	return func(name string) (*fakeSession, error) {
		names, ok := tools[name]
		if !ok {
			return nil, errors.New("no such fake backend")
		}
		return &fakeSession{name: name, tools: toolsNamed(names...)}, nil
	}
}

func descriptors(names ...string) []backend.Descriptor {
	out := make([]backend.Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, backend.Descriptor{Name: name, Command: "unused"})
	}
	return out
}

func newTestBroker(t *testing.T, dialer Dialer, opts Options, names ...string) *Broker {
	t.Helper()
	if opts.Loader == nil {
		opts.Loader = backend.StaticLoader(descriptors(names...)...)
	}
	opts.Dialer = dialer
	opts.Logger = discardLogger()
	b, err := New(opts)
	require.NoError(t, err)
	return b
}

func initialized(t *testing.T, b *Broker) *Broker {
	t.Helper()
	report := b.Initialize(context.Background())
	require.NoError(t, report.Err())
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b
}

// demoDialer connects every backend to a fresh in-memory demo server.
func demoDialer(t *testing.T) *MCPDialer {
	t.Helper()
	return &MCPDialer{
		ClientName: "registry-test",
		Transport: func(d backend.Descriptor) (mcp.Transport, error) {
			serverTransport, clientTransport := mcp.NewInMemoryTransports()
			serverSession, err := demo.NewServer().Connect(context.Background(), serverTransport, nil)
			if err != nil {
				return nil, err
			}
			t.Cleanup(func() { _ = serverSession.Close() })
			return clientTransport, nil
		},
	}
}
