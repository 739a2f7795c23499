package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/ggoodman/mcp-stdio-go/mcp"
	"github.com/invopop/jsonschema"
)

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	schemaTitle               string
	allowAdditionalProperties bool // default false (strict)
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolSchemaTitle overrides the input schema title, which defaults to the
// tool name suffixed with "Arguments".
func WithToolSchemaTitle(title string) ToolOption {
	return func(c *toolConfig) { c.schemaTitle = title }
}

// WithToolAllowAdditionalProperties controls whether unknown fields are allowed.
// When false (default), runtime decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a Tool from a typed args struct A. The input schema is
// reflected from A, and incoming arguments are decoded into A before fn runs.
// Decoding failures are returned as handler errors so callers see an error
// result.
func NewTool[A any](name string, fn func(ctx context.Context, args A) (any, error), opts ...ToolOption) Tool {
	cfg := toolConfig{schemaTitle: name + "Arguments"}
	for _, opt := range opts {
		opt(&cfg)
	}
	input := reflectToMCPInputSchema[A](cfg.allowAdditionalProperties)
	input.Title = cfg.schemaTitle

	handler := func(ctx context.Context, args map[string]any) (any, error) {
		a, err := decodeArgs[A](args, cfg.allowAdditionalProperties)
		if err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return fn(ctx, a)
	}

	return Tool{
		Descriptor: mcp.Tool{
			Name:        name,
			Description: cfg.description,
			InputSchema: input,
		},
		Handler: handler,
	}
}

func decodeArgs[A any](args map[string]any, allowAdditional bool) (A, error) {
	var a A
	if len(args) == 0 {
		return a, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return a, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if !allowAdditional {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&a); err != nil {
		return a, err
	}
	return a, nil
}

// reflectToMCPInputSchema reflects a Go type A into a jsonschema.Schema, and
// converts it to the simplified mcp.ToolInputSchema.
func reflectToMCPInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	// Only object schemas map onto ToolInputSchema.
	if s == nil || s.Type != "object" {
		return normalizeInputSchema(mcp.ToolInputSchema{})
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			p := toMCPProperty(el.Value)
			if p.Title == "" {
				p.Title = titleFromKey(el.Key)
			}
			props[el.Key] = p
		}
	}
	required := make([]string, 0, len(s.Required))
	required = append(required, s.Required...)

	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// toMCPProperty recursively maps a jsonschema.Schema to the simplified MCP SchemaProperty.
func toMCPProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Title:       s.Title,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toMCPProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toMCPProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// titleFromKey turns "wind_speed" into "Wind Speed".
func titleFromKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		rs := []rune(p)
		rs[0] = unicode.ToUpper(rs[0])
		parts[i] = string(rs)
	}
	return strings.Join(parts, " ")
}
