package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ggoodman/mcp-stdio-go/mcp"
)

type forecastArgs struct {
	Latitude  float64 `json:"latitude" jsonschema:"description=Latitude of the location"`
	Longitude float64 `json:"longitude" jsonschema:"title=Long,description=Longitude of the location"`
	Units     string  `json:"units,omitempty"`
}

type emptyArgs struct{}

func TestNewTool_ReflectsSchema(t *testing.T) {
	tool := NewTool("get_forecast", func(ctx context.Context, a forecastArgs) (any, error) {
		return "ok", nil
	}, WithToolDescription("forecast"))

	s := tool.Descriptor.InputSchema
	if s.Type != "object" {
		t.Fatalf("expected object schema, got %q", s.Type)
	}
	if s.Title != "get_forecastArguments" {
		t.Fatalf("unexpected schema title %q", s.Title)
	}
	lat, ok := s.Properties["latitude"]
	if !ok || lat.Type != "number" || lat.Title != "Latitude" || lat.Description != "Latitude of the location" {
		t.Fatalf("unexpected latitude property: %+v", lat)
	}
	if got := s.Properties["longitude"].Title; got != "Long" {
		t.Fatalf("explicit title not kept: %q", got)
	}
	req := strings.Join(s.Required, ",")
	if req != "latitude,longitude" {
		t.Fatalf("unexpected required list %q", req)
	}
}

func TestNewTool_EmptyArgsSerializesEmptyCollections(t *testing.T) {
	tool := NewTool("get_time", func(ctx context.Context, _ emptyArgs) (any, error) { return "now", nil })
	reg, err := NewToolRegistry(tool)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(reg.List()[0].InputSchema)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"properties":{}`) || !strings.Contains(string(b), `"required":[]`) {
		t.Fatalf("expected empty properties and required, got %s", b)
	}
}

func TestNewTool_DecodesArguments(t *testing.T) {
	var got forecastArgs
	tool := NewTool("get_forecast", func(ctx context.Context, a forecastArgs) (any, error) {
		got = a
		return nil, nil
	})
	if _, err := tool.Handler(context.Background(), map[string]any{"latitude": 40.7128, "longitude": -74.006}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got.Latitude != 40.7128 || got.Longitude != -74.006 {
		t.Fatalf("unexpected decoded args %+v", got)
	}
}

func TestNewTool_RejectsUnknownFieldsByDefault(t *testing.T) {
	tool := NewTool("get_forecast", func(ctx context.Context, a forecastArgs) (any, error) { return nil, nil })
	if _, err := tool.Handler(context.Background(), map[string]any{"bogus": 1}); err == nil {
		t.Fatalf("expected unknown field error")
	}

	lenient := NewTool("get_forecast", func(ctx context.Context, a forecastArgs) (any, error) { return nil, nil },
		WithToolAllowAdditionalProperties(true))
	if _, err := lenient.Handler(context.Background(), map[string]any{"bogus": 1}); err != nil {
		t.Fatalf("lenient tool rejected unknown field: %v", err)
	}
}

func TestToolRegistry_OrderAndDuplicates(t *testing.T) {
	mk := func(name string) Tool {
		return NewTool(name, func(ctx context.Context, _ emptyArgs) (any, error) { return name, nil })
	}
	reg, err := NewToolRegistry(mk("b"), mk("a"), mk("c"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tl := range reg.List() {
		names = append(names, tl.Name)
	}
	if strings.Join(names, ",") != "b,a,c" {
		t.Fatalf("registration order lost: %v", names)
	}

	if _, err := NewToolRegistry(mk("a"), mk("a")); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestToolRegistry_CallUnknown(t *testing.T) {
	reg, _ := NewToolRegistry()
	if _, err := reg.Call(context.Background(), "nope", nil); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
	var nilReg *ToolRegistry
	if _, err := nilReg.Call(context.Background(), "nope", nil); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("nil registry: expected ErrToolNotFound, got %v", err)
	}
	if got := nilReg.List(); got == nil || len(got) != 0 {
		t.Fatalf("nil registry should list an empty slice, got %#v", got)
	}
}

func TestToolRegistry_RawDescriptorNormalized(t *testing.T) {
	reg, err := NewToolRegistry(Tool{
		Descriptor: mcp.Tool{Name: "raw"},
		Handler:    func(ctx context.Context, args map[string]any) (any, error) { return args, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	s := reg.List()[0].InputSchema
	if s.Type != "object" || s.Properties == nil || s.Required == nil {
		t.Fatalf("schema not normalized: %+v", s)
	}
}

func TestToolRegistry_RejectsInvalidSchema(t *testing.T) {
	_, err := NewToolRegistry(Tool{
		Descriptor: mcp.Tool{Name: "bad", InputSchema: mcp.ToolInputSchema{Required: []string{"ghost"}}},
		Handler:    func(ctx context.Context, args map[string]any) (any, error) { return nil, nil },
	})
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected schema error naming the property, got %v", err)
	}
}
