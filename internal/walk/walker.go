// Package walk enumerates the text nodes a call operates on.
//
// A Walker visits one or more context nodes and, when enabled, the documents
// of the iframes inside them. Iframe content can arrive asynchronously, so the
// walker is continuation based: callers pass an end func that fires exactly
// once, after every branch has closed, on the Loop goroutine.
package walk

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"markhtml/internal/dom"
	"markhtml/internal/frame"
)

// Walker enumerates contexts and text nodes for one call.
type Walker struct {
	Ctx      context.Context
	Loop     *Loop
	Contexts []*html.Node
	Exclude  *Exclusion
	Logger   *zap.Logger

	// Iframes enables descending into embedded documents resolved by Frames.
	Iframes bool
	Frames  frame.Resolver
	// FrameTimeout bounds the wait for one iframe. Zero waits forever.
	FrameTimeout time.Duration
}

func (w *Walker) log() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

func (w *Walker) ctx() context.Context {
	if w.Ctx == nil {
		return context.Background()
	}
	return w.Ctx
}

// once guards a continuation so it runs a single time.
func once(fn func()) func() {
	fired := false
	return func() {
		if fired {
			return
		}
		fired = true
		fn()
	}
}

// EachContext calls cb for every context and, with Iframes, for the root
// element of every accessible embedded document. A context is reported after
// all of its iframe branches closed. end fires once everything closed.
func (w *Walker) EachContext(cb func(ctx *html.Node), end func()) {
	end = once(end)
	contexts := w.Contexts
	if len(contexts) == 0 {
		w.log().Warn("empty context")
		end()
		return
	}

	open := len(contexts)
	closeContext := func(el *html.Node) {
		cb(el)
		open--
		if open == 0 {
			end()
		}
	}
	for _, el := range contexts {
		el := el
		if w.Iframes {
			w.eachFrame(el, nil, cb, once(func() { closeContext(el) }))
			continue
		}
		closeContext(el)
	}
}

// EachTextNode calls cb for every eligible text node under the contexts, in
// document order within a context. Contexts already visited, or inside one
// that was, are skipped.
func (w *Walker) EachTextNode(cb func(text *html.Node), end func()) {
	var handled []*html.Node
	w.EachContext(func(ctx *html.Node) {
		for _, h := range handled {
			if dom.Contains(h, ctx) {
				return
			}
		}
		handled = append(handled, ctx)

		for _, n := range w.textNodes(ctx) {
			cb(n)
		}
	}, end)
}

// textNodes snapshots the text leaves of root. Excluded elements prune their
// whole subtree; iframe fallback content is not part of the document text.
func (w *Walker) textNodes(root *html.Node) []*html.Node {
	if root.Type == html.TextNode {
		if w.excluded(root.Parent) {
			return nil
		}
		return []*html.Node{root}
	}
	if w.excluded(root) {
		return nil
	}

	var out []*html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				out = append(out, c)
			case html.ElementNode:
				if c.DataAtom == atom.Iframe || w.excluded(c) {
					continue
				}
				visit(c)
			}
		}
	}
	visit(root)
	return out
}

func (w *Walker) excluded(el *html.Node) bool {
	return w.Exclude != nil && w.Exclude.Matches(el, true)
}

// maxFrameDepth bounds iframe nesting for resolvers whose locations never
// repeat.
const maxFrameDepth = 16

// eachFrame resolves every iframe under root, recurses into the accessible
// ones and calls end once all of them closed. ancestors holds the locations
// of the frame documents root is nested in; a frame that would load one of
// them again is refused, as a browser refuses to embed a document in itself.
func (w *Walker) eachFrame(root *html.Node, ancestors []string, cb func(*html.Node), end func()) {
	frames := goquery.NewDocumentFromNode(root).Find("iframe").Nodes
	if len(frames) == 0 {
		end()
		return
	}

	open := len(frames)
	closeFrame := func() {
		open--
		if open == 0 {
			end()
		}
	}
	for _, ifr := range frames {
		ifr := ifr
		closeThis := once(closeFrame)
		fail := func(reason string) {
			w.log().Warn("iframe could not be accessed",
				zap.String("src", dom.Attr(ifr, "src")), zap.String("reason", reason))
			closeThis()
		}
		w.onFrameReady(ifr, func(doc *html.Node, location string) {
			if embedsAncestor(ancestors, location) {
				fail("embeds an enclosing document")
				return
			}
			if len(ancestors) >= maxFrameDepth {
				fail("nested too deeply")
				return
			}
			el := dom.DocumentElement(doc)
			if el == nil {
				fail("no document element")
				return
			}
			nested := append(ancestors[:len(ancestors):len(ancestors)], frameLocation(location))
			w.eachFrame(el, nested, cb, func() {
				cb(el)
				closeThis()
			})
		}, func() {
			fail("inaccessible")
		})
	}
}

// frameLocation returns the location used for ancestry checks. Inline
// documents (srcdoc, about:blank) have none.
func frameLocation(location string) string {
	if strings.HasPrefix(location, "about:") {
		return ""
	}
	return location
}

func embedsAncestor(ancestors []string, location string) bool {
	loc := frameLocation(location)
	if loc == "" {
		return false
	}
	for _, a := range ancestors {
		if a == loc {
			return true
		}
	}
	return false
}

// onFrameReady delivers the document of ifr and its location to success once
// it is really loaded, or calls fail if it is inaccessible, abandoned or timed
// out. Exactly one of the two runs.
func (w *Walker) onFrameReady(ifr *html.Node, success func(doc *html.Node, location string), fail func()) {
	if w.Frames == nil {
		fail()
		return
	}
	win, err := w.Frames.Window(w.ctx(), ifr)
	if err != nil || win == nil {
		fail()
		return
	}

	// The initial about:blank of an iframe that has a real src is not its
	// content yet.
	isBlank := func() bool {
		src := strings.TrimSpace(dom.Attr(ifr, "src"))
		return win.Location() == frame.Blank && src != frame.Blank && src != ""
	}
	deliver := func() {
		doc, err := win.Document()
		if err != nil || doc == nil {
			fail()
			return
		}
		success(doc, win.Location())
	}

	if win.ReadyState() == frame.Complete && !isBlank() {
		deliver()
		return
	}
	if w.ctx().Err() != nil {
		fail()
		return
	}

	var (
		settled bool
		release func()
		remove  func()
		timer   *time.Timer
	)
	settle := func() bool {
		if settled {
			return false
		}
		settled = true
		release()
		if remove != nil {
			remove()
		}
		if timer != nil {
			timer.Stop()
		}
		return true
	}

	release = w.Loop.await(func() {
		if settle() {
			w.log().Debug("abandoned iframe wait", zap.String("src", dom.Attr(ifr, "src")))
			fail()
		}
	})
	if w.FrameTimeout > 0 {
		timer = time.AfterFunc(w.FrameTimeout, func() {
			w.Loop.Post(func() {
				if settle() {
					w.log().Debug("iframe wait timed out", zap.String("src", dom.Attr(ifr, "src")))
					fail()
				}
			})
		})
	}
	remove = win.OnLoad(func() {
		w.Loop.Post(func() {
			if settled || isBlank() {
				return
			}
			settle()
			deliver()
		})
	})
}
