// Package dom holds small helpers over golang.org/x/net/html trees that the
// x/net/html package itself does not provide: attribute access, deep
// cloning and text content.
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Attr returns the value of the attribute key of n and whether it exists.
// Only attributes without a namespace are considered.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// GetAttr returns the value of the attribute key of n, or "" if absent.
func GetAttr(n *html.Node, key string) string {
	v, _ := Attr(n, key)
	return v
}

// SetAttr sets the attribute key of n, adding it when absent.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr removes the attribute key of n. It reports whether the
// attribute existed.
func RemoveAttr(n *html.Node, key string) bool {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}

// IsElement reports whether n is an HTML element with the given tag name.
func IsElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Namespace == "" && n.Data == tag
}

// TextContent returns the concatenated text of n's child text nodes.
func TextContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// SetTextContent replaces all children of n with one text node.
func SetTextContent(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Walk calls fn for n and each of its descendants in document order.
// Returning false from fn skips the node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		// fn may detach c, so remember the sibling first.
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// Clone returns a deep copy of n. The copy is detached from n's parent and
// siblings. If visit is non-nil it is called with every (original, copy)
// pair.
func Clone(n *html.Node, visit func(orig, clone *html.Node)) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	if visit != nil {
		visit(n, c)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child, visit))
	}
	return c
}

// Find returns the first element in n's subtree with the given tag name.
func Find(n *html.Node, tag string) *html.Node {
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if IsElement(c, tag) {
			found = c
			return false
		}
		return true
	})
	return found
}

// Render serializes n to a string.
func Render(n *html.Node) (string, error) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}
