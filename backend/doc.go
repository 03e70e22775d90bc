// Package backend holds the static description of tool backends.
//
// A Descriptor says how to reach one backend: a subprocess launched with a
// command, arguments and an environment overlay, or an HTTP/SSE endpoint
// with optional headers. Descriptors are loaded from a JSON, YAML or TOML
// file whose top level maps backend names to descriptors under either the
// "mcpServers" or the "servers" key:
//
//	{
//	  "mcpServers": {
//	    "filesystem": {"command": "python", "args": ["filesystem_server.py"]},
//	    "remote":     {"url": "https://mcp.example.com/mcp", "headers": {"Authorization": "Bearer ${TOKEN}"}}
//	  }
//	}
//
// Loading is soft: a missing or malformed file produces an empty Store and
// an error wrapping ErrConfigLoad, so a process can start with no backends.
//
// Stores are read-only after load. The registry package reloads a Store
// through a Loader on every initialization.
package backend
