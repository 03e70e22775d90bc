package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolbridge/registry"
	"github.com/jonwraymond/toolbridge/search"
	"github.com/jonwraymond/toolbridge/tooldoc"
)

// Limits applied to listings.
const (
	activationListLimit = 15
	activeToolsPerGroup = 10
	defaultRecentCalls  = 10
	defaultSearchLimit  = 10
)

// ServerArgs names a backend.
type ServerArgs struct {
	ServerName string `json:"server_name" jsonschema:"name of the backend, for example git or demo"`
}

// ExecuteArgs selects a tool by backend and tool name.
type ExecuteArgs struct {
	Server    string `json:"server" jsonschema:"backend name, for example git"`
	Tool      string `json:"tool" jsonschema:"tool name without the backend prefix, for example status"`
	Arguments any    `json:"arguments,omitempty" jsonschema:"tool arguments as an object or a JSON string"`
}

// CallToolArgs selects a tool by its flat identifier.
type CallToolArgs struct {
	Name      string `json:"name" jsonschema:"flat tool identifier, for example git_status"`
	Arguments any    `json:"arguments,omitempty" jsonschema:"tool arguments as an object or a JSON string"`
}

// SearchArgs queries active tools and configured backends.
type SearchArgs struct {
	Query string `json:"query" jsonschema:"free text query; empty lists everything"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Kind  string `json:"kind,omitempty" jsonschema:"restrict results to tool or backend"`
}

// DescribeArgs selects a tool and a documentation level.
type DescribeArgs struct {
	Name   string `json:"name" jsonschema:"flat tool identifier"`
	Detail string `json:"detail,omitempty" jsonschema:"summary or schema, default summary"`
}

// StatusArgs controls get_system_status.
type StatusArgs struct {
	Check bool `json:"check,omitempty" jsonschema:"also probe every connected backend"`
}

// RecentArgs limits recent_calls.
type RecentArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of calls to show, default 10"`
}

// addTool registers a bridge tool and reserves its name.
func addTool[In any](b *Bridge, tool *mcp.Tool, h func(context.Context, In) *mcp.CallToolResult) {
	b.reserved[tool.Name] = true
	mcp.AddTool(b.server, tool, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		return h(ctx, in), nil, nil
	})
}

func (b *Bridge) addMetaTools() {
	addTool(b, &mcp.Tool{
		Name:        "list_servers",
		Description: "List every configured backend with its status, grouped by category",
	}, b.listServers)

	addTool(b, &mcp.Tool{
		Name:        "activate_server",
		Description: "Connect a backend and make its tools available",
	}, b.activateServer)

	addTool(b, &mcp.Tool{
		Name:        "deactivate_server",
		Description: "Disconnect a backend and remove its tools",
	}, b.deactivateServer)

	addTool(b, &mcp.Tool{
		Name:        "get_active_tools",
		Description: "List the tools of all connected backends",
	}, b.activeTools)

	addTool(b, &mcp.Tool{
		Name:        "execute",
		Description: "Run any backend tool by backend and tool name, activating the backend if needed",
	}, b.execute)

	addTool(b, &mcp.Tool{
		Name:        "call_tool",
		Description: "Run any backend tool by its flat identifier (backend_tool), activating the backend if needed",
	}, b.callTool)

	addTool(b, &mcp.Tool{
		Name:        "search_tools",
		Description: "Search active tools and configured backends by name, description and category",
	}, b.searchTools)

	addTool(b, &mcp.Tool{
		Name:        "describe_tool",
		Description: "Show the documentation and parameters of a backend tool",
	}, b.describeTool)

	addTool(b, &mcp.Tool{
		Name:        "get_system_status",
		Description: "Show bridge uptime, resource usage and connection counts",
	}, b.systemStatus)

	addTool(b, &mcp.Tool{
		Name:        "recent_calls",
		Description: "Show the most recent tool invocations from the call log",
	}, b.recentCalls)

	addTool(b, &mcp.Tool{
		Name:        "shutdown_bridge",
		Description: "Disconnect every backend and release all resources",
	}, b.shutdownBridge)

	addTool(b, &mcp.Tool{
		Name:        "help",
		Description: "Explain how to use the bridge",
	}, func(context.Context, struct{}) *mcp.CallToolResult {
		return textResult(helpText)
	})

	addTool(b, &mcp.Tool{
		Name:        "get_time",
		Description: "Current local date and time",
	}, func(context.Context, struct{}) *mcp.CallToolResult {
		return textResult(b.now().Format("2006-01-02 15:04:05"))
	})
}

func (b *Bridge) listServers(ctx context.Context, _ struct{}) *mcp.CallToolResult {
	b.ensureInitialized(ctx)
	return textResult(renderServers(b.broker.KnownBackends()))
}

func (b *Bridge) activateServer(ctx context.Context, in ServerArgs) *mcp.CallToolResult {
	b.ensureInitialized(ctx)
	res, err := b.broker.Connect(ctx, in.ServerName)
	if err != nil {
		return errorResult(err.Error())
	}

	var sb strings.Builder
	sb.WriteString(okMark + res.Message() + "\n\nAvailable tools:\n")
	for i, id := range res.Tools {
		if i == activationListLimit {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(res.Tools)-activationListLimit)
			break
		}
		fmt.Fprintf(&sb, "  - %s\n", id)
	}
	return textResult(strings.TrimRight(sb.String(), "\n"))
}

func (b *Bridge) deactivateServer(ctx context.Context, in ServerArgs) *mcp.CallToolResult {
	b.ensureInitialized(ctx)
	if err := b.broker.Disconnect(ctx, in.ServerName); err != nil {
		return errorResult(err.Error())
	}
	return textResult(okMark + in.ServerName + " deactivated")
}

func (b *Bridge) activeTools(ctx context.Context, _ struct{}) *mcp.CallToolResult {
	b.ensureInitialized(ctx)
	return textResult(renderActiveTools(b.broker.ActiveTools()))
}

func (b *Bridge) execute(ctx context.Context, in ExecuteArgs) *mcp.CallToolResult {
	args, err := decodeArguments(in.Arguments)
	if err != nil {
		return errorResult(err.Error())
	}
	b.ensureInitialized(ctx)
	return invocationResult(b.broker.Execute(ctx, in.Server, in.Tool, args))
}

func (b *Bridge) callTool(ctx context.Context, in CallToolArgs) *mcp.CallToolResult {
	args, err := decodeArguments(in.Arguments)
	if err != nil {
		return errorResult(err.Error())
	}
	b.ensureInitialized(ctx)
	return invocationResult(b.broker.Invoke(ctx, in.Name, args))
}

func (b *Bridge) searchTools(ctx context.Context, in SearchArgs) *mcp.CallToolResult {
	b.ensureInitialized(ctx)

	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	kind := search.Kind(strings.ToLower(strings.TrimSpace(in.Kind)))
	switch kind {
	case "", search.KindTool, search.KindBackend:
	default:
		return errorResult(fmt.Sprintf("unknown kind %q, use tool or backend", in.Kind))
	}

	docs := b.searchDocs(kind)
	results, err := b.searcher.Search(in.Query, limit, docs)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(renderSearch(in.Query, results))
}

// searchDocs collects active tools and configured backends as search docs.
func (b *Bridge) searchDocs(kind search.Kind) []search.Doc {
	var docs []search.Doc
	if kind == "" || kind == search.KindTool {
		for _, group := range b.broker.ActiveTools() {
			for _, t := range group.Tools {
				docs = append(docs, search.Doc{
					ID:          t.ID.String(),
					Kind:        search.KindTool,
					Backend:     t.ID.Backend,
					Name:        t.ID.Name,
					Description: t.Tool.Description,
					Tags:        t.Tool.Tags,
				})
			}
		}
	}
	if kind == "" || kind == search.KindBackend {
		for _, status := range b.broker.KnownBackends() {
			d := status.Descriptor
			docs = append(docs, search.Doc{
				ID:          d.Name,
				Kind:        search.KindBackend,
				Backend:     d.Name,
				Name:        d.Name,
				Description: d.Description,
				Category:    categoryOf(d),
			})
		}
	}
	return docs
}

func (b *Bridge) describeTool(ctx context.Context, in DescribeArgs) *mcp.CallToolResult {
	level, err := tooldoc.ParseDetail(in.Detail)
	if err != nil {
		return errorResult(err.Error())
	}
	b.ensureInitialized(ctx)
	tool, err := b.broker.Resolve(ctx, in.Name)
	if err != nil {
		return errorResult(err.Error())
	}
	doc, err := tooldoc.Describe(tool.ID.String(), tool.Tool, level)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(strings.TrimRight(doc.Text(), "\n"))
}

func (b *Bridge) systemStatus(ctx context.Context, in StatusArgs) *mcp.CallToolResult {
	var health error
	if in.Check {
		health = b.broker.HealthCheck(ctx)
		if errors.Is(health, registry.ErrNotInitialized) {
			health = nil
		}
	}
	return textResult(renderStatus(b.broker.Stats(), b.now().Sub(b.started), in.Check, health))
}

func (b *Bridge) recentCalls(ctx context.Context, in RecentArgs) *mcp.CallToolResult {
	if b.calls == nil {
		return textResult("Call history is disabled: no audit log is configured.")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultRecentCalls
	}
	entries, err := b.calls.Recent(ctx, limit)
	if err != nil {
		return errorResult(err.Error())
	}
	summary, err := b.calls.Summarize(ctx)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(renderRecent(entries, summary))
}

func (b *Bridge) shutdownBridge(ctx context.Context, _ struct{}) *mcp.CallToolResult {
	if err := b.broker.Shutdown(ctx); err != nil {
		b.logger.Warn("shutdown released backends with errors", "error", err)
		return errorResult("resources released with errors: " + err.Error())
	}
	return textResult(okMark + "Bridge resources released. The process can now exit.")
}

const helpText = `# toolbridge

toolbridge starts MCP backends on demand instead of all at once, so clients
only see a few bridge tools until they need more.

## Backends
- list_servers: every configured backend and its status
- activate_server {"server_name": "git"}: connect a backend
- deactivate_server {"server_name": "git"}: disconnect it again
- get_active_tools: tools of all connected backends
- search_tools {"query": "commit"}: find tools and backends
- describe_tool {"name": "git_log", "detail": "schema"}: parameters of a tool

## Running tools
- execute {"server": "git", "tool": "status", "arguments": {"repo_path": "."}}
- call_tool {"name": "git_status", "arguments": {"repo_path": "."}}
- every tool of a connected backend is also available directly as backend_tool

Backends are activated automatically when one of their tools is called.

## Shortcuts
read_file, write_file, list_directory, search_files, git_status, git_log,
git_diff and calculate call the filesystem, git and demo backends.

## Housekeeping
get_system_status, recent_calls, get_time, shutdown_bridge`
