package mcpservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-stdio-go/internal/validation"
	"github.com/ggoodman/mcp-stdio-go/mcp"
)

var (
	// ErrPromptNotFound is returned when prompts/get names an unregistered prompt.
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrMissingArgument is returned when a required prompt argument is absent.
	ErrMissingArgument = errors.New("missing required argument")
)

// PromptHandler materializes a prompt's messages from its arguments.
type PromptHandler func(ctx context.Context, args map[string]string) ([]mcp.PromptMessage, error)

// Prompt pairs a prompt descriptor with a handler that can materialize it.
type Prompt struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// PromptRegistry is an immutable, ordered set of prompts keyed by name.
type PromptRegistry struct {
	prompts []Prompt
	byName  map[string]int
}

// NewPromptRegistry builds a registry from defs, preserving their order.
func NewPromptRegistry(defs ...Prompt) (*PromptRegistry, error) {
	r := &PromptRegistry{
		prompts: make([]Prompt, 0, len(defs)),
		byName:  make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		name := d.Descriptor.Name
		if name == "" {
			return nil, fmt.Errorf("prompt with empty name")
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("prompt %q: nil handler", name)
		}
		if _, ok := r.byName[name]; ok {
			return nil, fmt.Errorf("prompt %q: %w", name, ErrDuplicateName)
		}
		if err := validation.PromptArguments(d.Descriptor.Arguments); err != nil {
			return nil, fmt.Errorf("prompt %q: %w", name, err)
		}
		if d.Descriptor.Arguments == nil {
			d.Descriptor.Arguments = []mcp.PromptArgument{}
		}
		r.byName[name] = len(r.prompts)
		r.prompts = append(r.prompts, d)
	}
	return r, nil
}

// List returns the prompt descriptors in registration order.
func (r *PromptRegistry) List() []mcp.Prompt {
	if r == nil {
		return []mcp.Prompt{}
	}
	out := make([]mcp.Prompt, len(r.prompts))
	for i, p := range r.prompts {
		out[i] = p.Descriptor
	}
	return out
}

// Get materializes the named prompt. Unknown names wrap ErrPromptNotFound and
// absent required arguments wrap ErrMissingArgument.
func (r *PromptRegistry) Get(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}
	i, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}
	p := r.prompts[i]
	for _, a := range p.Descriptor.Arguments {
		if _, ok := args[a.Name]; a.Required && !ok {
			return nil, fmt.Errorf("prompt %q: %w: %s", name, ErrMissingArgument, a.Name)
		}
	}
	if args == nil {
		args = map[string]string{}
	}
	msgs, err := p.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []mcp.PromptMessage{}
	}
	return &mcp.GetPromptResult{Description: p.Descriptor.Description, Messages: msgs}, nil
}

// Len reports the number of registered prompts.
func (r *PromptRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.prompts)
}
