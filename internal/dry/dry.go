package dry

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/freezedry/internal/dom"
	"github.com/nao1215/freezedry/internal/fetch"
	"github.com/nao1215/freezedry/internal/link"
	"github.com/nao1215/freezedry/internal/resource"
)

// Resource dries res: links are absolutized and, for documents,
// interactivity is stripped and <base> elements are removed.
func Resource(res link.Resource) error {
	err := Absolutize(res)
	if doc, ok := res.(*resource.Document); ok {
		StripInteractivity(doc.Node())
		RemoveBase(doc.Node())
	}
	return err
}

// Absolutize rewrites the links of res. A link whose target equals the URL
// of res apart from the fragment becomes the bare fragment; any other
// resolvable link becomes its absolute target. Unresolvable links and
// inlined data: references are left alone. Errors from individual links
// are collected and do not stop the rewrite.
func Absolutize(res link.Resource) error {
	own, _ := link.StripFragment(res.URL())

	var errs []error
	for _, l := range res.Links() {
		ref, err := l.Reference()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if fetch.IsDataURL(strings.TrimSpace(ref)) {
			continue
		}
		target, ok := l.Target()
		if !ok {
			continue
		}

		rewritten := target
		if withoutFragment, fragment := link.StripFragment(target); withoutFragment == own && fragment != "" {
			rewritten = fragment
		}
		if rewritten == ref {
			continue
		}
		if err := l.SetReference(rewritten); err != nil {
			errs = append(errs, fmt.Errorf("failed to absolutize %q: %w", ref, err))
		}
	}
	return errors.Join(errs...)
}

// StripInteractivity removes <script> and <noscript> elements, on*
// event handler attributes and contenteditable, and turns javascript: URLs
// into a bare, inert "javascript:". Applying it twice has the same effect
// as applying it once.
func StripInteractivity(root *html.Node) {
	dom.Walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if n.Data == "script" || n.Data == "noscript" {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			return false
		}
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			key := strings.ToLower(a.Key)
			if strings.HasPrefix(key, "on") || key == "contenteditable" {
				continue
			}
			if isJavaScriptURL(a.Val) {
				a.Val = "javascript:"
			}
			kept = append(kept, a)
		}
		n.Attr = kept
		return true
	})
}

// isJavaScriptURL reports whether v is a javascript: URL, ignoring leading
// whitespace and control characters as URL parsers do.
func isJavaScriptURL(v string) bool {
	v = strings.TrimLeft(v, "\x00\x01\x02\x03\x04\x05\x06\x07\x08\t\n\v\f\r\x0e\x0f\x10\x11\x12\x13\x14\x15\x16\x17\x18\x19\x1a\x1b\x1c\x1d\x1e\x1f ")
	return len(v) >= 11 && strings.EqualFold(v[:11], "javascript:")
}

// RemoveBase removes every <base> element. After absolutization a <base>
// would only make the remaining relative references resolve against the
// original host.
func RemoveBase(root *html.Node) {
	dom.Walk(root, func(n *html.Node) bool {
		if dom.IsElement(n, "base") {
			n.Parent.RemoveChild(n)
			return false
		}
		return true
	})
}
