package mcpservice

import (
	"context"
	"fmt"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-stdio-go/mcp"
	"github.com/yosida95/uritemplate/v3"
)

// ResourceHandler produces the contents of a registered resource.
type ResourceHandler func(ctx context.Context, uri string) ([]mcp.ResourceContents, error)

// TemplateHandler produces the contents of a resource whose URI matched a
// template. vars holds the expanded template variables.
type TemplateHandler func(ctx context.Context, uri string, vars map[string]string) ([]mcp.ResourceContents, error)

// Resource pairs a resource descriptor with the handler that reads it.
type Resource struct {
	Descriptor mcp.Resource
	Handler    ResourceHandler
}

// ResourceTemplate pairs a URI template descriptor with its handler.
type ResourceTemplate struct {
	Descriptor mcp.ResourceTemplate
	Handler    TemplateHandler
}

// NewTextResource returns a Resource whose contents are the fixed text.
func NewTextResource(desc mcp.Resource, text string) Resource {
	return Resource{
		Descriptor: desc,
		Handler: func(_ context.Context, uri string) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{{URI: uri, MimeType: desc.MimeType, Text: text}}, nil
		},
	}
}

type compiledTemplate struct {
	def ResourceTemplate
	tpl *uritemplate.Template
}

// ResourceRegistry is an immutable, ordered set of resources and templates.
type ResourceRegistry struct {
	resources []Resource
	byURI     map[string]int
	templates []compiledTemplate
}

// NewResourceRegistry builds a registry, preserving input order. MIME types
// are validated and normalized; templates are compiled up front.
func NewResourceRegistry(resources []Resource, templates []ResourceTemplate) (*ResourceRegistry, error) {
	r := &ResourceRegistry{
		resources: make([]Resource, 0, len(resources)),
		byURI:     make(map[string]int, len(resources)),
		templates: make([]compiledTemplate, 0, len(templates)),
	}
	for _, res := range resources {
		uri := res.Descriptor.URI
		if uri == "" {
			return nil, fmt.Errorf("resource %q: empty uri", res.Descriptor.Name)
		}
		if res.Handler == nil {
			return nil, fmt.Errorf("resource %q: nil handler", uri)
		}
		if _, ok := r.byURI[uri]; ok {
			return nil, fmt.Errorf("resource %q: %w", uri, ErrDuplicateName)
		}
		mt, err := normalizeMimeType(res.Descriptor.MimeType)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", uri, err)
		}
		res.Descriptor.MimeType = mt
		r.byURI[uri] = len(r.resources)
		r.resources = append(r.resources, res)
	}
	seen := make(map[string]struct{}, len(templates))
	for _, t := range templates {
		raw := t.Descriptor.URITemplate
		if _, ok := seen[raw]; ok {
			return nil, fmt.Errorf("resource template %q: %w", raw, ErrDuplicateName)
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("resource template %q: nil handler", raw)
		}
		tpl, err := uritemplate.New(raw)
		if err != nil {
			return nil, fmt.Errorf("resource template %q: %w", raw, err)
		}
		mt, err := normalizeMimeType(t.Descriptor.MimeType)
		if err != nil {
			return nil, fmt.Errorf("resource template %q: %w", raw, err)
		}
		t.Descriptor.MimeType = mt
		seen[raw] = struct{}{}
		r.templates = append(r.templates, compiledTemplate{def: t, tpl: tpl})
	}
	return r, nil
}

// List returns the resource descriptors in registration order.
func (r *ResourceRegistry) List() []mcp.Resource {
	if r == nil {
		return []mcp.Resource{}
	}
	out := make([]mcp.Resource, len(r.resources))
	for i, res := range r.resources {
		out[i] = res.Descriptor
	}
	return out
}

// ListTemplates returns the template descriptors in registration order.
func (r *ResourceRegistry) ListTemplates() []mcp.ResourceTemplate {
	if r == nil {
		return []mcp.ResourceTemplate{}
	}
	out := make([]mcp.ResourceTemplate, len(r.templates))
	for i, t := range r.templates {
		out[i] = t.def.Descriptor
	}
	return out
}

// Read resolves uri against registered resources first, then templates in
// order. An unknown URI yields placeholder text content rather than an error.
func (r *ResourceRegistry) Read(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	if r != nil {
		if i, ok := r.byURI[uri]; ok {
			return r.resources[i].Handler(ctx, uri)
		}
		for _, t := range r.templates {
			vals := t.tpl.Match(uri)
			if vals == nil {
				continue
			}
			vars := make(map[string]string, len(t.tpl.Varnames()))
			for _, name := range t.tpl.Varnames() {
				vars[name] = vals.Get(name).String()
			}
			return t.def.Handler(ctx, uri, vars)
		}
	}
	return []mcp.ResourceContents{{
		URI:      uri,
		MimeType: "text/plain",
		Text:     "Resource content for: " + uri,
	}}, nil
}

// normalizeMimeType parses a media type and returns its canonical form. An
// empty input is allowed and returned unchanged.
func normalizeMimeType(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	mt := contenttype.NewMediaType(s)
	if mt.Type == "" || mt.Subtype == "" {
		return "", fmt.Errorf("invalid mime type %q", s)
	}
	if mt.Type == "*" || mt.Subtype == "*" {
		return "", fmt.Errorf("wildcard mime type %q", s)
	}
	return mt.String(), nil
}
