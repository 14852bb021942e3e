// Package mark highlights search terms in HTML trees.
//
// A Marker wraps every occurrence of a keyword (or of a regular expression)
// in the text of its context nodes with a marker element, and removes those
// elements again with Unmark. Calls block until the traversal, including any
// iframe documents, has completed; the Done callback fires exactly once per
// call on the calling goroutine.
//
//	m := mark.New(nil, body)
//	opt := mark.DefaultOptions()
//	opt.Accuracy = mark.Accuracy{Value: "exactly"}
//	n := m.Mark(ctx, []string{"lorem ipsum"}, opt)
package mark

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"markhtml/internal/dom"
	"markhtml/internal/frame"
	"markhtml/internal/pattern"
	"markhtml/internal/walk"
)

// Marker operates on a fixed set of context nodes.
type Marker struct {
	contexts []*html.Node
	frames   frame.Resolver
}

// New returns a Marker for contexts. frames resolves iframe documents when
// Options.Iframes is set; with a nil resolver every iframe is inaccessible.
func New(frames frame.Resolver, contexts ...*html.Node) *Marker {
	return &Marker{contexts: contexts, frames: frames}
}

// FromSelection returns a Marker for the nodes of sel.
func FromSelection(frames frame.Resolver, sel *goquery.Selection) *Marker {
	if sel == nil {
		return New(frames)
	}
	return New(frames, sel.Nodes...)
}

// call is the per-invocation state shared by the walker and the callbacks.
type call struct {
	opt    resolved
	loop   *walk.Loop
	walker *walk.Walker
}

func (m *Marker) newCall(ctx context.Context, opt Options) *call {
	o := opt.resolve()
	loop := walk.NewLoop()
	return &call{
		opt:  o,
		loop: loop,
		walker: &walk.Walker{
			Ctx:          ctx,
			Loop:         loop,
			Contexts:     m.contexts,
			Exclude:      walk.NewExclusion(o.Exclude, o.log),
			Logger:       o.log,
			Iframes:      o.Iframes,
			Frames:       m.frames,
			FrameTimeout: o.IframesTimeout,
		},
	}
}

func (c *call) wrapper() dom.Wrapper {
	return dom.Wrapper{Tag: c.opt.Element, ClassName: c.opt.ClassName}
}

// finish reports total through Done and stops the loop.
func (c *call) finish(total int) {
	c.opt.Done(total)
	c.loop.Stop()
}

// Mark wraps every match of keywords and returns the total count. Keywords
// are searched one after the other; NoMatch fires for each keyword without a
// match (blank keywords included) and Done once after the last keyword.
func (m *Marker) Mark(ctx context.Context, keywords []string, opt Options) int {
	c := m.newCall(ctx, opt)
	kws := separateKeywords(keywords, c.opt.SeparateWordSearch)
	cfg := c.opt.patternConfig()

	total := 0
	var search func(i int)
	search = func(i int) {
		if i == len(kws) {
			c.finish(total)
			return
		}
		kw := kws[i].text
		next := func() { c.loop.Post(func() { search(i + 1) }) }
		if kws[i].blank {
			c.opt.NoMatch(kw)
			next()
			return
		}

		re, err := pattern.Compile(kw, cfg)
		if err != nil {
			c.opt.log.Warn("skipping keyword", zap.String("keyword", kw), zap.Error(err))
			c.opt.NoMatch(kw)
			next()
			return
		}
		c.opt.log.Debug("searching", zap.String("keyword", kw), zap.String("expression", re.String()))

		finder := dom.KeywordFinder(re)
		matches := 0
		each := func(el *html.Node) {
			matches++
			total++
			c.opt.Each(el)
		}
		c.walker.EachTextNode(func(text *html.Node) {
			dom.WrapMatches(text, finder, c.wrapper(), func(cur *html.Node, _ string) bool {
				return c.opt.Filter(cur, kw, matches, total)
			}, each)
		}, func() {
			if matches == 0 {
				c.opt.NoMatch(kw)
			}
			next()
		})
	}

	search(0)
	c.loop.Run(ctx)
	return total
}

// MarkRegExp wraps every match of re and returns the count. The whole match
// is wrapped; Filter receives the matched text as term.
func (m *Marker) MarkRegExp(ctx context.Context, re *regexp.Regexp, opt Options) int {
	c := m.newCall(ctx, opt)
	c.opt.log.Debug("searching", zap.String("expression", re.String()))

	finder := dom.PatternFinder(re)
	total := 0
	each := func(el *html.Node) {
		total++
		c.opt.Each(el)
	}
	c.walker.EachTextNode(func(text *html.Node) {
		dom.WrapMatches(text, finder, c.wrapper(), func(cur *html.Node, matched string) bool {
			return c.opt.Filter(cur, matched, total, total)
		}, each)
	}, func() {
		if total == 0 {
			c.opt.NoMatch(re.String())
		}
		c.finish(total)
	})

	c.loop.Run(ctx)
	return total
}

// Unmark removes the wrappers matching Element and ClassName from the
// contexts (and, with Iframes, their iframe documents) and returns how many
// were removed. Wrappers matching an exclusion are kept.
func (m *Marker) Unmark(ctx context.Context, opt Options) int {
	c := m.newCall(ctx, opt)
	sel := removalSelector(c.opt.Element, c.opt.ClassName)
	c.opt.log.Debug("removal selector", zap.String("selector", sel))

	removed := 0
	c.walker.EachContext(func(root *html.Node) {
		for _, el := range goquery.NewDocumentFromNode(root).Find(sel).Nodes {
			if c.walker.Exclude.Matches(el, false) {
				continue
			}
			dom.Unwrap(el)
			removed++
		}
	}, func() {
		c.finish(removed)
	})

	c.loop.Run(ctx)
	return removed
}

func removalSelector(element, className string) string {
	sel := element
	if sel == "" {
		sel = "*"
	}
	sel += "[" + dom.MarkerAttr + "]"
	for _, cls := range strings.Fields(className) {
		sel += "." + cls
	}
	return sel
}

// term is one keyword to search. Blank keywords are kept so they can be
// reported through NoMatch without being searched.
type term struct {
	text  string
	blank bool
}

// separateKeywords breaks keywords on spaces when split is set. A keyword
// that is blank as a whole becomes a blank term; blank pieces of a split
// keyword are dropped.
func separateKeywords(keywords []string, split bool) []term {
	var out []term
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			out = append(out, term{text: kw, blank: true})
			continue
		}
		if !split {
			out = append(out, term{text: kw})
			continue
		}
		for _, part := range strings.Split(kw, " ") {
			if strings.TrimSpace(part) != "" {
				out = append(out, term{text: part})
			}
		}
	}
	return out
}
