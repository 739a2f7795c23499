package mcpservice

import (
	"context"
	"errors"
	"testing"

	"github.com/ggoodman/mcp-stdio-go/mcp"
)

func TestResourceRegistry_ReadResolution(t *testing.T) {
	ctx := context.Background()
	reg, err := NewResourceRegistry(
		[]Resource{
			NewTextResource(mcp.Resource{URI: "weather://stations", Name: "stations", MimeType: "text/plain"}, "KNYC"),
		},
		[]ResourceTemplate{{
			Descriptor: mcp.ResourceTemplate{URITemplate: "weather://forecast/{city}", Name: "forecast"},
			Handler: func(_ context.Context, uri string, vars map[string]string) ([]mcp.ResourceContents, error) {
				return []mcp.ResourceContents{{URI: uri, Text: "forecast for " + vars["city"]}}, nil
			},
		}},
	)
	if err != nil {
		t.Fatal(err)
	}

	got, err := reg.Read(ctx, "weather://stations")
	if err != nil || got[0].Text != "KNYC" || got[0].MimeType != "text/plain" {
		t.Fatalf("exact match: %+v err=%v", got, err)
	}

	got, err = reg.Read(ctx, "weather://forecast/boston")
	if err != nil || got[0].Text != "forecast for boston" {
		t.Fatalf("template match: %+v err=%v", got, err)
	}

	got, err = reg.Read(ctx, "other://thing")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Text != "Resource content for: other://thing" || got[0].MimeType != "text/plain" || got[0].URI != "other://thing" {
		t.Fatalf("placeholder: %+v", got)
	}
}

func TestResourceRegistry_Validation(t *testing.T) {
	text := func(uri, mt string) Resource {
		return NewTextResource(mcp.Resource{URI: uri, Name: uri, MimeType: mt}, "")
	}
	if _, err := NewResourceRegistry([]Resource{text("a://1", ""), text("a://1", "")}, nil); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := NewResourceRegistry([]Resource{text("a://1", "not a mime type")}, nil); err == nil {
		t.Fatalf("expected mime validation error")
	}
	if _, err := NewResourceRegistry([]Resource{text("a://1", "*/*")}, nil); err == nil {
		t.Fatalf("expected wildcard mime rejection")
	}
	bad := ResourceTemplate{
		Descriptor: mcp.ResourceTemplate{URITemplate: "a://{unclosed", Name: "bad"},
		Handler: func(context.Context, string, map[string]string) ([]mcp.ResourceContents, error) {
			return nil, nil
		},
	}
	if _, err := NewResourceRegistry(nil, []ResourceTemplate{bad}); err == nil {
		t.Fatalf("expected template parse error")
	}
}

func TestResourceRegistry_EmptyListsAreNonNil(t *testing.T) {
	reg, err := NewResourceRegistry(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if reg.List() == nil || reg.ListTemplates() == nil {
		t.Fatalf("expected empty non-nil slices")
	}
}
