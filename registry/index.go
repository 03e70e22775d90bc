package registry

import (
	"log/slog"
	"sort"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ActiveTool is a tool currently reachable through a connected backend.
type ActiveTool struct {
	ID ToolID
	// Tool is the backend's definition with Namespace set to the backend name.
	Tool model.Tool
	// Owner names the backend that exposes the tool. It never carries the
	// session itself.
	Owner model.ToolBackend
}

// BackendTools groups the active tools of one backend in listing order.
type BackendTools struct {
	Backend string
	Tools   []ActiveTool
}

// toolIndex is the derived tool registry. It is not safe for concurrent use;
// the Broker guards it with its own lock and is its only writer.
type toolIndex struct {
	tools map[ToolID]ActiveTool
	flat  map[string]ToolID
	order map[string][]ToolID
}

func newToolIndex() *toolIndex {
	return &toolIndex{
		tools: make(map[ToolID]ActiveTool),
		flat:  make(map[string]ToolID),
		order: make(map[string][]ToolID),
	}
}

// add registers the tools of one backend and returns the IDs it accepted.
// Duplicate names from the same backend keep the first definition. A flat
// identifier already owned by another backend is left with its owner; the
// new tool stays reachable by its structured ID.
func (x *toolIndex) add(backendName string, tools []*mcp.Tool, logger *slog.Logger) []ToolID {
	ids := make([]ToolID, 0, len(tools))
	for _, t := range tools {
		if t == nil || t.Name == "" {
			continue
		}
		id := ToolID{Backend: backendName, Name: t.Name}
		if _, exists := x.tools[id]; exists {
			logger.Warn("duplicate tool from backend ignored", "backend", backendName, "tool", t.Name)
			continue
		}

		x.tools[id] = ActiveTool{
			ID:    id,
			Tool:  model.Tool{Tool: *t, Namespace: backendName},
			Owner: model.NewMCPBackend(backendName),
		}
		if owner, taken := x.flat[id.String()]; taken {
			logger.Warn("flat tool identifier collision",
				"tool_id", id.String(), "backend", backendName, "owner", owner.Backend)
		} else {
			x.flat[id.String()] = id
		}
		ids = append(ids, id)
	}
	x.order[backendName] = ids
	return ids
}

// remove drops every tool of a backend and returns the removed IDs.
func (x *toolIndex) remove(backendName string) []ToolID {
	ids := x.order[backendName]
	for _, id := range ids {
		delete(x.tools, id)
		if owner, ok := x.flat[id.String()]; ok && owner == id {
			delete(x.flat, id.String())
		}
	}
	delete(x.order, backendName)
	return ids
}

func (x *toolIndex) clear() {
	x.tools = make(map[ToolID]ActiveTool)
	x.flat = make(map[string]ToolID)
	x.order = make(map[string][]ToolID)
}

func (x *toolIndex) lookup(id ToolID) (ActiveTool, bool) {
	t, ok := x.tools[id]
	return t, ok
}

func (x *toolIndex) lookupFlat(flat string) (ActiveTool, bool) {
	id, ok := x.flat[flat]
	if !ok {
		return ActiveTool{}, false
	}
	return x.lookup(id)
}

func (x *toolIndex) toolsFor(backendName string) []ActiveTool {
	ids := x.order[backendName]
	out := make([]ActiveTool, 0, len(ids))
	for _, id := range ids {
		if t, ok := x.tools[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// grouped returns tools grouped by backend, backends sorted by name.
func (x *toolIndex) grouped() []BackendTools {
	names := make([]string, 0, len(x.order))
	for name := range x.order {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]BackendTools, 0, len(names))
	for _, name := range names {
		out = append(out, BackendTools{Backend: name, Tools: x.toolsFor(name)})
	}
	return out
}

func (x *toolIndex) len() int {
	return len(x.tools)
}
