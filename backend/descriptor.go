package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Type selects how a backend is reached.
type Type string

const (
	// TypeStdio launches the backend as a subprocess speaking MCP over stdio.
	TypeStdio Type = "stdio"
	// TypeHTTP connects to a streamable HTTP MCP endpoint.
	TypeHTTP Type = "http"
	// TypeSSE connects to a legacy SSE MCP endpoint.
	TypeSSE Type = "sse"
)

// DefaultCommand is used for stdio backends that omit a command.
const DefaultCommand = "python"

// ErrInvalidDescriptor is returned when a descriptor cannot be used to
// launch or reach a backend.
var ErrInvalidDescriptor = errors.New("invalid backend descriptor")

// Descriptor is the static description of one backend.
// Descriptors are immutable once loaded; methods return copies.
type Descriptor struct {
	// Name is the unique backend identifier. It is the key in the
	// descriptor file and the prefix of every flat tool identifier.
	Name string `json:"-" yaml:"-" toml:"-"`

	Type    Type     `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Command string   `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	URL     string   `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`

	// Headers are sent with every request to http and sse backends.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty"`

	// Env is merged over the ambient environment of a stdio backend.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`

	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty" toml:"category,omitempty"`
}

// Kind returns the effective transport type. A descriptor without an
// explicit type is an http backend when it has a URL and stdio otherwise.
func (d Descriptor) Kind() Type {
	switch t := Type(strings.ToLower(string(d.Type))); t {
	case TypeStdio, TypeHTTP, TypeSSE:
		return t
	case "streamable-http", "streamable_http", "https":
		return TypeHTTP
	}
	if strings.TrimSpace(d.URL) != "" {
		return TypeHTTP
	}
	return TypeStdio
}

// LaunchCommand returns the command to execute, applying DefaultCommand.
func (d Descriptor) LaunchCommand() string {
	if strings.TrimSpace(d.Command) == "" {
		return DefaultCommand
	}
	return d.Command
}

// Validate reports whether the descriptor is usable.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	switch d.Kind() {
	case TypeHTTP, TypeSSE:
		if strings.TrimSpace(d.URL) == "" {
			return fmt.Errorf("%w: %s: url is required for %s backends", ErrInvalidDescriptor, d.Name, d.Kind())
		}
	}
	return nil
}

// Environ merges the overlay Env over base. Entries in the overlay win on
// conflicting keys. The result is sorted by key.
func (d Descriptor) Environ(base []string) []string {
	merged := make(map[string]string, len(base)+len(d.Env))
	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		merged[key] = value
	}
	for key, value := range d.Env {
		if key == "" {
			continue
		}
		merged[key] = value
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+merged[key])
	}
	return out
}

// ResolveArgs returns the launch arguments with a relative first argument
// rewritten to an absolute path under scriptsRoot when such a file exists.
// Other arguments, and first arguments that do not name a file under the
// root, are returned unchanged.
func (d Descriptor) ResolveArgs(scriptsRoot string) []string {
	if len(d.Args) == 0 {
		return nil
	}
	args := make([]string, len(d.Args))
	copy(args, d.Args)

	if scriptsRoot == "" || filepath.IsAbs(args[0]) || strings.HasPrefix(args[0], "-") {
		return args
	}
	candidate := filepath.Join(scriptsRoot, args[0])
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		if abs, err := filepath.Abs(candidate); err == nil {
			args[0] = abs
		} else {
			args[0] = candidate
		}
	}
	return args
}

func (d Descriptor) clone() Descriptor {
	out := d
	if d.Args != nil {
		out.Args = append([]string(nil), d.Args...)
	}
	if d.Headers != nil {
		out.Headers = make(map[string]string, len(d.Headers))
		for k, v := range d.Headers {
			out.Headers[k] = v
		}
	}
	if d.Env != nil {
		out.Env = make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			out.Env[k] = v
		}
	}
	return out
}
