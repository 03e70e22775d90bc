// Package bridge is the client-facing MCP server of toolbridge.
//
// A Bridge exposes a small, fixed set of meta-tools for discovering and
// activating backends, a handful of quick-access shortcuts for the most
// common backend tools, and every tool of every connected backend under
// its flat identifier. Backend tools appear and disappear as backends are
// connected and disconnected; the SDK notifies clients of the change.
//
// All tool work is delegated to a registry.Broker:
//
//	broker, _ := registry.New(registry.Options{Loader: backend.FileLoader("servers.json")})
//	br, _ := bridge.New(bridge.Options{Broker: broker})
//	defer br.Close()
//	broker.Initialize(ctx)
//	err := br.Run(ctx, &mcp.StdioTransport{})
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolbridge/audit"
	"github.com/jonwraymond/toolbridge/registry"
	"github.com/jonwraymond/toolbridge/search"
)

// CallLog is the read side of the invocation log.
type CallLog interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
	Summarize(ctx context.Context) ([]audit.Summary, error)
}

// Options configures a Bridge.
type Options struct {
	// Name and Version identify the bridge to clients.
	Name    string
	Version string

	// Broker serves every tool call. Required.
	Broker *registry.Broker

	// Calls backs the recent_calls tool. Optional.
	Calls CallLog

	// Searcher backs search_tools. Defaults to a searcher with default boosts.
	Searcher *search.Searcher

	// HideBackendTools disables exposing active backend tools directly.
	// The meta-tools still reach them through call_tool and execute.
	HideBackendTools bool

	// Now defaults to time.Now.
	Now func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Bridge is the front MCP server.
type Bridge struct {
	server   *mcp.Server
	broker   *registry.Broker
	calls    CallLog
	searcher *search.Searcher
	now      func() time.Time
	started  time.Time
	logger   *slog.Logger

	// reserved holds the names of the bridge's own tools. Backend tools
	// whose flat identifier equals one of them are not exposed directly.
	reserved map[string]bool

	// exposeMu guards exposed and orders exposure changes.
	exposeMu    sync.Mutex
	exposed     map[string]registry.ToolID
	unsubscribe func()
}

// New creates a Bridge and registers its tools.
func New(opts Options) (*Bridge, error) {
	if opts.Broker == nil {
		return nil, errors.New("bridge: broker is required")
	}
	if opts.Name == "" {
		opts.Name = "toolbridge"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Searcher == nil {
		opts.Searcher = search.NewSearcher(search.Config{})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	b := &Bridge{
		server: mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, &mcp.ServerOptions{
			Instructions: instructions,
		}),
		broker:   opts.Broker,
		calls:    opts.Calls,
		searcher: opts.Searcher,
		now:      opts.Now,
		logger:   opts.Logger.With("component", "bridge"),
		reserved: make(map[string]bool),
		exposed:  make(map[string]registry.ToolID),
	}
	b.started = b.now()

	b.addMetaTools()
	b.addQuickTools()

	if !opts.HideBackendTools {
		b.unsubscribe = b.broker.OnChange(b.applyChange)
		b.syncExposed()
	}
	return b, nil
}

// Server returns the underlying MCP server.
func (b *Bridge) Server() *mcp.Server {
	return b.server
}

// Run serves one client over transport until ctx is done or the client
// disconnects.
func (b *Bridge) Run(ctx context.Context, transport mcp.Transport) error {
	return b.server.Run(ctx, transport)
}

// HTTPHandler serves clients over the streamable HTTP transport. All
// clients share the bridge and its broker.
func (b *Bridge) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return b.server
	}, nil)
}

// Close detaches the bridge from the broker and releases the search index.
// It does not shut the broker down.
func (b *Bridge) Close() error {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	return b.searcher.Close()
}

// ensureInitialized initializes the broker on first use and again after a
// shutdown_bridge.
func (b *Bridge) ensureInitialized(ctx context.Context) {
	if b.broker.Initialized() {
		return
	}
	report := b.broker.Initialize(ctx)
	if err := report.Err(); err != nil {
		b.logger.Warn("broker initialized with errors", "error", err)
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: failMark + text}},
		IsError: true,
	}
}

// invocationResult converts a broker result for the client.
func invocationResult(res *registry.Result) *mcp.CallToolResult {
	if res.IsError {
		return errorResult(res.Text)
	}
	return textResult(res.Text)
}

const (
	okMark   = "✓ "
	failMark = "✗ "
)

const instructions = `toolbridge connects MCP backends on demand. Use list_servers to see
what is available, activate_server to load a backend's tools, and execute
or call_tool to run any tool; unconnected backends are activated
automatically. Call help for details.`
