// Package dom holds the tree helpers shared by the walker and the mutator:
// attribute access, containment, text content and normalization over
// golang.org/x/net/html nodes.
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Attr returns the value of attribute key on n, or "" when absent.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries attribute key.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// Contains reports whether b is a or a descendant of a.
func Contains(a, b *html.Node) bool {
	for n := b; n != nil; n = n.Parent {
		if n == a {
			return true
		}
	}
	return false
}

// TextContent concatenates the data of every text node under n in document
// order.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// DocumentElement returns the <html> element of doc, or nil.
func DocumentElement(doc *html.Node) *html.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == html.ElementNode && doc.Data == "html" {
		return doc
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "html" {
			return c
		}
	}
	return nil
}

// SplitText breaks text node n at byte offset off. n keeps the data before
// off and a new text node holding the rest is inserted right after it.
func SplitText(n *html.Node, off int) *html.Node {
	rest := &html.Node{Type: html.TextNode, Data: n.Data[off:]}
	n.Data = n.Data[:off]
	if n.Parent != nil {
		n.Parent.InsertBefore(rest, n.NextSibling)
	}
	return rest
}

// Normalize merges adjacent text nodes and removes empty ones in the subtree
// rooted at n.
func Normalize(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.TextNode:
			if c.Data == "" {
				n.RemoveChild(c)
				c = next
				continue
			}
			for next != nil && next.Type == html.TextNode {
				c.Data += next.Data
				following := next.NextSibling
				n.RemoveChild(next)
				next = following
			}
		case html.ElementNode:
			Normalize(c)
		}
		c = next
	}
}
