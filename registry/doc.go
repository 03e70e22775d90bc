// Package registry brokers connections to tool backends and dispatches
// tool calls to them.
//
// A Broker owns one Session per connected backend and a derived registry of
// the tools those sessions expose. Backends are connected lazily: calling a
// tool whose flat identifier ("backend_tool") names a configured but
// unconnected backend connects it first.
//
// The connected set, the live sessions and the tool registry always change
// together. A tool is never visible without its session, and a session is
// never closed while its tools are still registered.
//
// Lifecycle:
//
//	uninitialized --Initialize--> initialized --Shutdown--> uninitialized
//
// Initialize loads descriptors through a backend.Loader and connects the
// bootstrap backends; Shutdown releases every session in reverse order of
// acquisition and forgets the configuration.
//
// Example usage:
//
//	broker, err := registry.New(registry.Options{
//	    Loader:    backend.FileLoader("mcp-servers.json"),
//	    Dialer:    &registry.MCPDialer{ScriptsRoot: "servers"},
//	    Bootstrap: []string{"filesystem", "git"},
//	})
//	if err != nil {
//	    return err
//	}
//	broker.Initialize(ctx)
//	defer broker.Shutdown(context.Background())
//
//	res := broker.Invoke(ctx, "demo_calculate", map[string]any{"expression": "2+2"})
//	fmt.Println(res.Text)
//
// Errors wrap the sentinels in errors.go; use errors.Is to classify them.
package registry
