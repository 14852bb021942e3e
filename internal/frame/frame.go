// Package frame models the documents embedded by <iframe> elements.
//
// A parsed HTML tree only carries the <iframe> element; its content has to be
// produced by a Resolver. Content may be available immediately, arrive later
// (Loading until the load signal fires), or be permanently inaccessible (a
// Document error). The walker consumes Windows the way a browser script
// consumes contentWindow: it checks the ready state and location, and
// registers a one-shot load listener when it has to wait.
package frame

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/net/html"
)

// Blank is the placeholder location of a window that has not navigated yet.
const Blank = "about:blank"

var (
	// ErrCrossOrigin is returned by Document for content on another origin.
	ErrCrossOrigin = errors.New("frame: cross-origin content is not accessible")
	// ErrNotFound is returned when a source cannot be located.
	ErrNotFound = errors.New("frame: source not found")
)

// ReadyState mirrors document.readyState.
type ReadyState int

const (
	Loading ReadyState = iota
	Complete
)

// Window is the content side of one <iframe>.
type Window interface {
	ReadyState() ReadyState
	Location() string
	// Document returns the loaded document or the reason it cannot be read.
	Document() (*html.Node, error)
	// OnLoad registers fn for the load signal and returns a func that
	// deregisters it. fn may run on any goroutine. If the window has already
	// completed, fn is invoked once right away.
	OnLoad(fn func()) (remove func())
}

// Resolver returns the Window of an <iframe> element. Implementations return
// the same Window for the same element so later calls see the same document.
type Resolver interface {
	Window(ctx context.Context, iframe *html.Node) (Window, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, iframe *html.Node) (Window, error)

func (f ResolverFunc) Window(ctx context.Context, iframe *html.Node) (Window, error) {
	return f(ctx, iframe)
}

// Page is a Window whose content is delivered through Finish.
type Page struct {
	mu        sync.Mutex
	state     ReadyState
	location  string
	doc       *html.Node
	err       error
	listeners map[int]func()
	nextID    int
}

// NewPage returns a Page that is Loading at about:blank.
func NewPage() *Page {
	return &Page{location: Blank, listeners: make(map[int]func())}
}

// LoadedPage returns a Page that is already Complete.
func LoadedPage(location string, doc *html.Node) *Page {
	p := NewPage()
	p.state = Complete
	p.location = location
	p.doc = doc
	return p
}

// FailedPage returns a Complete Page whose Document fails with err.
func FailedPage(location string, err error) *Page {
	p := LoadedPage(location, nil)
	p.err = err
	return p
}

func (p *Page) ReadyState() ReadyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Page) Location() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location
}

func (p *Page) Document() (*html.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.doc, nil
}

func (p *Page) OnLoad(fn func()) (remove func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	done := p.state == Complete
	p.mu.Unlock()

	if done {
		fn()
	}
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Finish completes the page and fires the load signal. A page may finish more
// than once (a navigation); every call fires the registered listeners.
func (p *Page) Finish(location string, doc *html.Node, err error) {
	p.mu.Lock()
	p.state = Complete
	p.location = location
	p.doc = doc
	p.err = err
	fns := make([]func(), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// cache keeps one Window per iframe element.
type cache struct {
	mu      sync.Mutex
	windows map[*html.Node]Window
}

func (c *cache) get(iframe *html.Node, open func() Window) Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.windows == nil {
		c.windows = make(map[*html.Node]Window)
	}
	if w, ok := c.windows[iframe]; ok {
		return w
	}
	w := open()
	c.windows[iframe] = w
	return w
}

// bases remembers the location each frame document was loaded from, so an
// iframe nested in it resolves against that document rather than the page.
type bases struct {
	mu   sync.Mutex
	docs map[*html.Node]string
}

func (b *bases) set(doc *html.Node, location string) {
	if doc == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.docs == nil {
		b.docs = make(map[*html.Node]string)
	}
	b.docs[doc] = location
}

// of returns the location of the frame document containing iframe, or false
// when iframe belongs to a document the resolver did not load.
func (b *bases) of(iframe *html.Node) (string, bool) {
	root := iframe
	for root.Parent != nil {
		root = root.Parent
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	loc, ok := b.docs[root]
	return loc, ok
}
