package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolbridge/registry"
)

// applyChange mirrors a registry change onto the server's tool list.
func (b *Bridge) applyChange(ev registry.ChangeEvent) {
	b.exposeMu.Lock()
	defer b.exposeMu.Unlock()

	switch ev.Kind {
	case registry.EventConnected:
		b.exposeLocked(ev.Tools)
	case registry.EventDisconnected:
		b.withdrawLocked(func(id registry.ToolID) bool { return id.Backend == ev.Backend })
	case registry.EventCleared:
		b.withdrawLocked(func(registry.ToolID) bool { return true })
	}
}

// syncExposed exposes the tools of backends connected before the bridge
// subscribed.
func (b *Bridge) syncExposed() {
	b.exposeMu.Lock()
	defer b.exposeMu.Unlock()
	for _, group := range b.broker.ActiveTools() {
		b.exposeLocked(group.Tools)
	}
}

func (b *Bridge) exposeLocked(tools []registry.ActiveTool) {
	for _, t := range tools {
		flat := t.ID.String()
		if b.reserved[flat] {
			b.logger.Debug("backend tool shadowed by bridge tool", "tool_id", flat)
			continue
		}
		if owner, ok := b.exposed[flat]; ok && owner != t.ID {
			continue
		}

		tool := t.Tool.Tool
		tool.Name = flat
		tool.InputSchema = objectSchema(tool.InputSchema)
		tool.OutputSchema = nil
		b.server.AddTool(&tool, b.forward(flat))
		b.exposed[flat] = t.ID
	}
}

func (b *Bridge) withdrawLocked(match func(registry.ToolID) bool) {
	var names []string
	for flat, id := range b.exposed {
		if match(id) {
			names = append(names, flat)
			delete(b.exposed, flat)
		}
	}
	if len(names) > 0 {
		b.server.RemoveTools(names...)
	}
}

// forward returns the handler of an exposed backend tool.
func (b *Bridge) forward(flat string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		args, err := decodeArguments(raw)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		b.ensureInitialized(ctx)
		return invocationResult(b.broker.Invoke(ctx, flat, args)), nil
	}
}

// objectSchema returns schema when it describes a JSON object and an
// empty object schema otherwise.
func objectSchema(schema any) any {
	if m, ok := schema.(map[string]any); ok && m["type"] == "object" {
		return m
	}
	if schema != nil {
		data, err := json.Marshal(schema)
		if err == nil {
			var m map[string]any
			if json.Unmarshal(data, &m) == nil && m["type"] == "object" {
				return m
			}
		}
	}
	return map[string]any{"type": "object"}
}

// decodeArguments accepts a JSON object, a JSON string holding an object,
// or nothing.
func decodeArguments(v any) (map[string]any, error) {
	switch a := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return a, nil
	case json.RawMessage:
		if len(a) == 0 || string(a) == "null" {
			return map[string]any{}, nil
		}
		var decoded any
		if err := json.Unmarshal(a, &decoded); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return decodeArguments(decoded)
	case string:
		if a == "" {
			return map[string]any{}, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(a), &m); err != nil {
			return nil, fmt.Errorf("invalid JSON arguments: %w", err)
		}
		if m == nil {
			m = map[string]any{}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("arguments must be an object, got %T", v)
	}
}
