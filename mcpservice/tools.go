package mcpservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-stdio-go/internal/validation"
	"github.com/ggoodman/mcp-stdio-go/mcp"
)

var (
	// ErrToolNotFound is returned when a tools/call names an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrDuplicateName is returned when a registry is built with two entries
	// sharing a name or URI.
	ErrDuplicateName = errors.New("duplicate name")
)

// ToolHandler executes a tool. A returned error, or a map result carrying an
// "error" key, is reported to the caller as an error result rather than a
// protocol failure.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Tool pairs an MCP tool descriptor with its handler.
type Tool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRegistry is an immutable, ordered set of tools keyed by name.
type ToolRegistry struct {
	tools  []Tool
	byName map[string]int
}

// NewToolRegistry builds a registry from defs, preserving their order.
func NewToolRegistry(defs ...Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools:  make([]Tool, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		name := d.Descriptor.Name
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("tool %q: nil handler", name)
		}
		if _, ok := r.byName[name]; ok {
			return nil, fmt.Errorf("tool %q: %w", name, ErrDuplicateName)
		}
		if err := validation.ToolInputSchema(&d.Descriptor.InputSchema); err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
		r.byName[name] = len(r.tools)
		r.tools = append(r.tools, d)
	}
	return r, nil
}

// List returns the tool descriptors in registration order.
func (r *ToolRegistry) List() []mcp.Tool {
	if r == nil {
		return []mcp.Tool{}
	}
	out := make([]mcp.Tool, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Descriptor
	}
	return out
}

// Lookup returns the tool registered under name.
func (r *ToolRegistry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	i, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// Call invokes the named tool's handler. Unknown names yield an error
// wrapping ErrToolNotFound.
func (r *ToolRegistry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Handler(ctx, args)
}

// Len reports the number of registered tools.
func (r *ToolRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tools)
}

// normalizeInputSchema makes sure an empty schema still serializes as an
// object with empty properties and required members.
func normalizeInputSchema(s mcp.ToolInputSchema) mcp.ToolInputSchema {
	if s.Type == "" {
		s.Type = "object"
	}
	if s.Properties == nil {
		s.Properties = map[string]mcp.SchemaProperty{}
	}
	if s.Required == nil {
		s.Required = []string{}
	}
	return s
}
