package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrConfigLoad wraps every failure to read or decode a descriptor file.
var ErrConfigLoad = errors.New("backend configuration load failed")

// file is the on-disk layout. Both the "mcpServers" key used by most MCP
// clients and the shorter "servers" key are accepted.
type file struct {
	MCPServers map[string]Descriptor `json:"mcpServers" yaml:"mcpServers" toml:"mcpServers"`
	Servers    map[string]Descriptor `json:"servers" yaml:"servers" toml:"servers"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the value of the
// environment variable, or the empty string when it is unset.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

// Load reads a descriptor file. The decoder is chosen by extension:
// .yaml and .yml use YAML, .toml uses TOML, anything else JSON.
//
// Load never returns a nil store. A missing, unreadable or malformed file
// yields an empty store and an error wrapping ErrConfigLoad; invalid
// entries are skipped and reported the same way while valid entries load.
func Load(path string) (*InMemoryStore, error) {
	store, _ := NewInMemoryStore()

	data, err := os.ReadFile(path)
	if err != nil {
		return store, fmt.Errorf("%w: reading %s: %v", ErrConfigLoad, path, err)
	}

	descriptors, err := Parse(data, formatFor(path))
	if err != nil {
		return store, fmt.Errorf("%w: parsing %s: %v", ErrConfigLoad, path, err)
	}

	var errs []error
	for _, d := range descriptors {
		if err := store.Add(d); err != nil {
			errs = append(errs, fmt.Errorf("backend %q: %w", d.Name, err))
		}
	}
	if len(errs) > 0 {
		return store, fmt.Errorf("%w: %s: %w", ErrConfigLoad, path, errors.Join(errs...))
	}
	return store, nil
}

// FileLoader returns a Loader that reads path on every call.
func FileLoader(path string) Loader {
	return func() (Store, error) {
		return Load(path)
	}
}

// StaticLoader returns a Loader that always yields the given descriptors.
func StaticLoader(descriptors ...Descriptor) Loader {
	return func() (Store, error) {
		return NewInMemoryStore(descriptors...)
	}
}

// Format names a descriptor file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// Parse decodes descriptor file content, then expands ${VAR} references
// in the launch fields of every descriptor. Values are substituted after
// decoding, so they never need escaping for the file format.
// Descriptors are returned sorted by name. When both top-level keys are
// present, "mcpServers" wins on conflicting names.
func Parse(data []byte, format Format) ([]Descriptor, error) {
	var f file
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, err
		}
	default:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, errors.New("empty document")
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	}

	merged := make(map[string]Descriptor, len(f.MCPServers)+len(f.Servers))
	for name, d := range f.Servers {
		d.Name = name
		merged[name] = d
	}
	for name, d := range f.MCPServers {
		d.Name = name
		merged[name] = d
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, expandDescriptor(merged[name]))
	}
	return out, nil
}

// expandDescriptor expands ${VAR} references in the command, args, URL,
// header values and env values. Maps and slices are copied.
func expandDescriptor(d Descriptor) Descriptor {
	d.Command = expandEnvVars(d.Command)
	d.URL = expandEnvVars(d.URL)
	if d.Args != nil {
		args := make([]string, len(d.Args))
		for i, a := range d.Args {
			args[i] = expandEnvVars(a)
		}
		d.Args = args
	}
	d.Headers = expandValues(d.Headers)
	d.Env = expandValues(d.Env)
	return d
}

func expandValues(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = expandEnvVars(v)
	}
	return out
}
