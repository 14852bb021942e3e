package frame

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"markhtml/internal/dom"
	"markhtml/internal/source"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// HTTP resolves iframe sources against the URL of the document that embeds
// them and fetches same-origin ones with a source.Loader.
type HTTP struct {
	loader *source.Loader
	base   *url.URL
	cache  cache
	bases  bases
}

// NewHTTP returns a resolver for documents loaded from base.
func NewHTTP(loader *source.Loader, base *url.URL) *HTTP {
	return &HTTP{loader: loader, base: base}
}

func (r *HTTP) Window(ctx context.Context, iframe *html.Node) (Window, error) {
	return r.cache.get(iframe, func() Window {
		parent := r.base
		if loc, ok := r.bases.of(iframe); ok {
			if u, err := url.Parse(loc); err == nil {
				parent = u
			}
		}

		if w, ok := inlineWindow(iframe); ok {
			// Inline documents share the base of the document embedding them.
			if doc, err := w.Document(); err == nil && parent != nil {
				r.bases.set(doc, parent.String())
			}
			return w
		}

		src := strings.TrimSpace(dom.Attr(iframe, "src"))
		abs, err := url.Parse(source.ResolveHref(parent, src))
		if err != nil {
			return FailedPage(src, fmt.Errorf("parse src %q: %w", src, err))
		}
		if !sameOrigin(r.base, abs) {
			return FailedPage(abs.String(), ErrCrossOrigin)
		}

		p := NewPage()
		go func() {
			body, err := r.loader.Load(ctx, source.Input{URL: abs.String()})
			if err != nil {
				p.Finish(abs.String(), nil, fmt.Errorf("load %s: %w", abs, err))
				return
			}
			doc, err := parseDocument(body)
			r.bases.set(doc, abs.String())
			p.Finish(abs.String(), doc, err)
		}()
		return p
	}), nil
}

// inlineWindow covers iframes whose content needs no fetch: srcdoc, a
// missing src and about:blank.
func inlineWindow(iframe *html.Node) (Window, bool) {
	if dom.HasAttr(iframe, "srcdoc") {
		doc, err := parseDocument(dom.Attr(iframe, "srcdoc"))
		if err != nil {
			return FailedPage("about:srcdoc", err), true
		}
		return LoadedPage("about:srcdoc", doc), true
	}
	src := strings.TrimSpace(dom.Attr(iframe, "src"))
	if src == "" || src == Blank {
		doc, _ := parseDocument("")
		return LoadedPage(Blank, doc), true
	}
	return nil, false
}

func sameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

func parseDocument(body string) (*html.Node, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc.Get(0), nil
}
