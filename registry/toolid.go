package registry

import (
	"sort"
	"strings"
)

// Separator joins a backend name and a tool name in a flat identifier.
const Separator = "_"

// ToolID identifies a tool by the backend that exposes it and the name the
// backend uses for it. The pair is kept structured internally; the flat
// "backend_name" form exists only for clients.
type ToolID struct {
	Backend string
	Name    string
}

// String returns the flat client-facing identifier.
func (id ToolID) String() string {
	return id.Backend + Separator + id.Name
}

// IsZero reports whether id is the zero value.
func (id ToolID) IsZero() bool {
	return id.Backend == "" && id.Name == ""
}

// resolveBackend finds the single configured backend whose name followed by
// Separator prefixes flat. Zero or several matches resolve to nothing: an
// identifier that could belong to more than one backend is never guessed.
func resolveBackend(flat string, backends []string) (ToolID, bool) {
	var matches []ToolID
	for _, name := range backends {
		prefix := name + Separator
		if name == "" || !strings.HasPrefix(flat, prefix) || len(flat) == len(prefix) {
			continue
		}
		matches = append(matches, ToolID{Backend: name, Name: flat[len(prefix):]})
	}
	if len(matches) != 1 {
		return ToolID{}, false
	}
	return matches[0], true
}

func sortToolIDs(ids []ToolID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Backend != ids[j].Backend {
			return ids[i].Backend < ids[j].Backend
		}
		return ids[i].Name < ids[j].Name
	})
}
