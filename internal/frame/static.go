package frame

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"markhtml/internal/dom"

	"golang.org/x/net/html"
)

// FetchFunc returns the HTML of an iframe source.
type FetchFunc func(src string) (string, error)

// Static resolves iframes synchronously through a FetchFunc. Every window it
// returns is already Complete. Sources inside a fetched document are resolved
// relative to that document's source before they reach the FetchFunc.
type Static struct {
	fetch FetchFunc
	cache cache
	bases bases
}

// NewStatic returns a resolver backed by fetch.
func NewStatic(fetch FetchFunc) *Static {
	return &Static{fetch: fetch}
}

func (r *Static) Window(_ context.Context, iframe *html.Node) (Window, error) {
	return r.cache.get(iframe, func() Window {
		parent, nested := r.bases.of(iframe)

		if w, ok := inlineWindow(iframe); ok {
			if doc, err := w.Document(); err == nil && nested {
				r.bases.set(doc, parent)
			}
			return w
		}

		src := strings.TrimSpace(dom.Attr(iframe, "src"))
		if nested {
			src = resolveRelative(parent, src)
		}
		body, err := r.fetch(src)
		if err != nil {
			return FailedPage(src, err)
		}
		doc, err := parseDocument(body)
		if err != nil {
			return FailedPage(src, err)
		}
		r.bases.set(doc, src)
		return LoadedPage(src, doc)
	}), nil
}

// resolveRelative resolves a relative path src against the directory of
// parent. Sources with a scheme, a host or an absolute path are returned
// unchanged.
func resolveRelative(parent, src string) string {
	u, err := url.Parse(src)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" || strings.HasPrefix(u.Path, "/") {
		return src
	}
	p, err := url.Parse(parent)
	if err != nil {
		return src
	}
	u.Path = path.Join(path.Dir(p.Path), u.Path)
	return u.String()
}

// MapFetcher serves sources from an in-memory map.
func MapFetcher(pages map[string]string) FetchFunc {
	return func(src string) (string, error) {
		body, ok := pages[src]
		if !ok {
			return "", fmt.Errorf("%q: %w", src, ErrNotFound)
		}
		return body, nil
	}
}

// DirFetcher serves relative sources from files under root. Sources with a
// scheme or host are treated as another origin, and paths may not leave root.
func DirFetcher(root string) FetchFunc {
	return func(src string) (string, error) {
		u, err := url.Parse(src)
		if err != nil {
			return "", fmt.Errorf("parse src %q: %w", src, err)
		}
		if u.Scheme != "" || u.Host != "" {
			return "", ErrCrossOrigin
		}
		rel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(u.Path, "/")))
		if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%q: %w", src, ErrNotFound)
		}
		b, err := os.ReadFile(filepath.Join(root, rel))
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%q: %w", src, ErrNotFound)
		}
		if err != nil {
			return "", fmt.Errorf("read %q: %w", src, err)
		}
		return string(b), nil
	}
}
