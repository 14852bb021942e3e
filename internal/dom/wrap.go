package dom

import (
	"regexp"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MarkerAttr flags elements created by WrapMatches.
const MarkerAttr = "data-markjs"

// DefaultTag is the wrapper element used when none is configured.
const DefaultTag = "mark"

// Span locates one match in a text. Start and End delimit the text to wrap;
// Next is where scanning resumes when the match is vetoed. All offsets are
// bytes.
type Span struct {
	Start, End, Next int
}

// Finder reports the first match in text at or after byte offset from.
type Finder interface {
	Find(text string, from int) (Span, bool)
}

// KeywordFinder adapts a pattern built by the pattern package. The text to
// wrap is group 2, shifted by the boundary consumed in group 1.
func KeywordFinder(re *regexp2.Regexp) Finder {
	return keywordFinder{re: re}
}

type keywordFinder struct {
	re *regexp2.Regexp
}

func (f keywordFinder) Find(text string, from int) (Span, bool) {
	runes := []rune(text)
	m, err := f.re.FindRunesMatchStartingAt(runes, utf8.RuneCountInString(text[:from]))
	if err != nil || m == nil {
		return Span{}, false
	}
	lead, kw := m.GroupByNumber(1), m.GroupByNumber(2)
	if lead == nil || kw == nil {
		return Span{}, false
	}
	start := m.Index + lead.Length
	end := start + kw.Length
	next := m.Index + m.Length
	return Span{
		Start: byteOffset(runes, start),
		End:   byteOffset(runes, end),
		Next:  byteOffset(runes, next),
	}, true
}

func byteOffset(runes []rune, n int) int {
	off := 0
	for _, r := range runes[:n] {
		off += utf8.RuneLen(r)
	}
	return off
}

// PatternFinder adapts a caller supplied expression; the whole match is
// wrapped.
func PatternFinder(re *regexp.Regexp) Finder {
	return patternFinder{re: re}
}

type patternFinder struct {
	re *regexp.Regexp
}

func (f patternFinder) Find(text string, from int) (Span, bool) {
	for _, loc := range f.re.FindAllStringIndex(text, -1) {
		if loc[0] >= from {
			return Span{Start: loc[0], End: loc[1], Next: loc[1]}, true
		}
	}
	return Span{}, false
}

// Wrapper describes the element placed around each match.
type Wrapper struct {
	Tag       string
	ClassName string
}

func (w Wrapper) element() *html.Node {
	tag := w.Tag
	if tag == "" {
		tag = DefaultTag
	}
	el := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     []html.Attribute{{Key: MarkerAttr, Val: "true"}},
	}
	if w.ClassName != "" {
		el.Attr = append(el.Attr, html.Attribute{Key: "class", Val: w.ClassName})
	}
	return el
}

// WrapMatches wraps every accepted match in node with a Wrapper element and
// returns how many were wrapped.
//
// The node is split as matches are found, so the loop keeps an explicit
// cursor: after a wrap the remainder text node becomes the cursor and
// scanning restarts at its beginning. A vetoed match only advances the scan
// offset. filter receives the current cursor node and the matched text; each
// receives every inserted wrapper.
func WrapMatches(node *html.Node, f Finder, w Wrapper, filter func(cur *html.Node, matched string) bool, each func(el *html.Node)) int {
	wrapped := 0
	from := 0
	for node != nil && from <= len(node.Data) {
		sp, ok := f.Find(node.Data, from)
		if !ok {
			break
		}
		if sp.End <= sp.Start {
			from = advance(node.Data, sp)
			continue
		}
		matched := node.Data[sp.Start:sp.End]
		if filter != nil && !filter(node, matched) {
			from = advance(node.Data, sp)
			continue
		}

		target := node
		if sp.Start > 0 {
			target = SplitText(node, sp.Start)
		}
		var rest *html.Node
		if len(matched) < len(target.Data) {
			rest = SplitText(target, len(matched))
		}

		if parent := target.Parent; parent != nil {
			el := w.element()
			parent.InsertBefore(el, target)
			parent.RemoveChild(target)
			el.AppendChild(target)
			wrapped++
			if each != nil {
				each(el)
			}
		}

		node = rest
		from = 0
	}
	return wrapped
}

// advance returns the scan offset after a skipped span, stepping at least one
// rune so empty matches cannot stall the loop.
func advance(text string, sp Span) int {
	if sp.Next > sp.Start {
		return sp.Next
	}
	if sp.Start >= len(text) {
		return len(text) + 1
	}
	_, size := utf8.DecodeRuneInString(text[sp.Start:])
	return sp.Start + size
}

// Unwrap moves the children of el into its parent in place of el, then
// normalizes the parent so the text it held merges back with its neighbours.
func Unwrap(el *html.Node) {
	parent := el.Parent
	if parent == nil {
		return
	}
	for c := el.FirstChild; c != nil; {
		next := c.NextSibling
		el.RemoveChild(c)
		parent.InsertBefore(c, el)
		c = next
	}
	parent.RemoveChild(el)
	Normalize(parent)
}
