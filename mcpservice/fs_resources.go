package mcpservice

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ggoodman/mcp-stdio-go/mcp"
)

// FSResources enumerates the regular files of fsys and returns one Resource
// per file, addressed as baseURI + "/" + path. Files are read on every
// resources/read, so contents may change while the listing stays fixed.
func FSResources(fsys fs.FS, baseURI string) ([]Resource, error) {
	baseURI = strings.TrimRight(baseURI, "/")
	var out []Resource
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isSymlink(d) || !validFSPath(p) {
			return nil
		}
		rel := p
		out = append(out, Resource{
			Descriptor: mcp.Resource{
				URI:      relToURI(baseURI, rel),
				Name:     path.Base(rel),
				MimeType: mime.TypeByExtension(strings.ToLower(path.Ext(rel))),
			},
			Handler: func(_ context.Context, uri string) ([]mcp.ResourceContents, error) {
				data, err := fs.ReadFile(fsys, rel)
				if err != nil {
					return nil, fmt.Errorf("read failed: %w", err)
				}
				mt := mime.TypeByExtension(strings.ToLower(path.Ext(rel)))
				return []mcp.ResourceContents{contentsFor(uri, mt, data)}, nil
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor.URI < out[j].Descriptor.URI })
	return out, nil
}

func contentsFor(uri, mimeType string, data []byte) mcp.ResourceContents {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if utf8.Valid(data) {
		return mcp.ResourceContents{URI: uri, MimeType: mimeType, Text: string(data)}
	}
	return mcp.ResourceContents{URI: uri, MimeType: mimeType, Blob: base64.StdEncoding.EncodeToString(data)}
}

func isSymlink(d fs.DirEntry) bool {
	if d == nil {
		return false
	}
	if d.Type()&fs.ModeSymlink != 0 {
		return true
	}
	// Some FS don't set Type; fall back to Info
	if info, err := d.Info(); err == nil {
		return info.Mode()&fs.ModeSymlink != 0
	}
	return false
}

func validFSPath(p string) bool {
	if !fs.ValidPath(p) {
		return false
	}
	return !strings.Contains(p, ":")
}

func relToURI(baseURI, rel string) string {
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return baseURI + "/" + strings.Join(segs, "/")
}
